package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	ledger "backoffice-ledger/internal/ledger/domain"
	"backoffice-ledger/internal/observability/metrics"
)

// SettlementService applies tendered payments to outstanding obligations,
// receivables and payables alike.
type SettlementService struct {
	store Store
	clock Clock
	ids   IDFactory
}

// NewSettlementService constructs a service.
func NewSettlementService(store Store, clock Clock, ids IDFactory) (*SettlementService, error) {
	if store == nil {
		return nil, errors.New("settlement service: nil store")
	}
	if clock == nil {
		return nil, errors.New("settlement service: nil clock")
	}
	if ids == nil {
		return nil, errors.New("settlement service: nil id factory")
	}
	return &SettlementService{store: store, clock: clock, ids: ids}, nil
}

// Settle applies tendered against the obligation's outstanding amount. The
// row is locked and reread inside the transaction before the check, so two
// racing settlements of the same obligation serialize and the loser gets
// ErrAlreadySettled or the reduced balance. Returns the row representing
// this settlement event: the closed original or the new settlement leaf.
func (s *SettlementService) Settle(ctx context.Context, kind ledger.ObligationKind, id string, tendered decimal.Decimal, date time.Time, settledBy string) (*ledger.Obligation, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSettlement(string(kind), result, time.Since(start))
	}()

	sess, err := s.store.Begin(ctx)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	defer func() { _ = sess.Rollback() }()

	o, err := sess.Obligations().GetForUpdate(ctx, kind, id)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	outcome, err := o.ApplySettlement(tendered, date, settledBy, s.ids.NewID())
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	now := s.clock.Now()
	o.UpdatedAt = now
	if err := sess.Obligations().Update(ctx, o); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if outcome.Leaf != nil {
		outcome.Leaf.CreatedAt = now
		outcome.Leaf.UpdatedAt = now
		if err := sess.Obligations().Insert(ctx, outcome.Leaf); err != nil {
			result = metrics.ResultError
			return nil, err
		}
	}
	if err := sess.Commit(); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return outcome.Settlement, nil
}
