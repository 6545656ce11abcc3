package application

import (
	"context"
	"errors"
	"time"

	ledger "backoffice-ledger/internal/ledger/domain"
	"backoffice-ledger/internal/observability/metrics"
)

// SaleService records, edits and deletes sales. Every operation runs inside
// one transactional session, so stock and ledger rows move together or not
// at all.
type SaleService struct {
	store Store
	clock Clock
	ids   IDFactory
}

// NewSaleService constructs a service.
func NewSaleService(store Store, clock Clock, ids IDFactory) (*SaleService, error) {
	if store == nil {
		return nil, errors.New("sale service: nil store")
	}
	if clock == nil {
		return nil, errors.New("sale service: nil clock")
	}
	if ids == nil {
		return nil, errors.New("sale service: nil id factory")
	}
	return &SaleService{store: store, clock: clock, ids: ids}, nil
}

// SaleInput describes a sale to record or the full replacement for an edit.
type SaleInput struct {
	ClientID    string
	Description string
	OriginDate  time.Time
	DueDate     time.Time
	Lines       []ledger.ReservationLine
}

// Record reserves stock for every line and creates the receivable with the
// computed total. A shortfall on any line rolls the whole sale back.
func (s *SaleService) Record(ctx context.Context, input SaleInput) (*ledger.Obligation, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSaleOp("record", result, time.Since(start))
	}()

	sess, err := s.store.Begin(ctx)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	defer func() { _ = sess.Rollback() }()

	items, _, err := reserveForSale(ctx, sess.Stock(), input.Lines)
	if err != nil {
		result = metrics.ResultError
		var short *ledger.InsufficientStockError
		if errors.As(err, &short) {
			metrics.IncInsufficientStock()
		}
		return nil, err
	}

	sale, err := ledger.NewReceivable(s.ids.NewID(), input.ClientID, input.Description, input.OriginDate, input.DueDate, items)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	now := s.clock.Now()
	sale.CreatedAt = now
	sale.UpdatedAt = now

	if err := sess.Obligations().Insert(ctx, sale); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := sess.Commit(); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return sale, nil
}

// Edit replaces the sale's line items: the old quantities are released, the
// new lines reserved and the amount recomputed, all in one transaction. Any
// failure leaves the original sale and stock untouched.
func (s *SaleService) Edit(ctx context.Context, id string, input SaleInput) (*ledger.Obligation, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSaleOp("edit", result, time.Since(start))
	}()

	sess, err := s.store.Begin(ctx)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	defer func() { _ = sess.Rollback() }()

	sale, err := sess.Obligations().GetForUpdate(ctx, ledger.KindReceivable, id)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if sale.IsSettled() || sale.IsLeaf() {
		result = metrics.ResultError
		return nil, ledger.ErrAlreadySettled
	}

	if err := releaseForSale(ctx, sess.Stock(), sale.Lines); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	items, total, err := reserveForSale(ctx, sess.Stock(), input.Lines)
	if err != nil {
		result = metrics.ResultError
		var short *ledger.InsufficientStockError
		if errors.As(err, &short) {
			metrics.IncInsufficientStock()
		}
		return nil, err
	}

	sale.Lines = items
	sale.Amount = total
	sale.Description = input.Description
	if input.ClientID != "" {
		sale.CounterpartyID = input.ClientID
	}
	if !input.OriginDate.IsZero() {
		sale.OriginDate = input.OriginDate
	}
	if !input.DueDate.IsZero() {
		sale.DueDate = input.DueDate
	}
	sale.UpdatedAt = s.clock.Now()

	if err := sess.Obligations().Update(ctx, sale); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := sess.Obligations().ReplaceLines(ctx, sale.ID, sale.Lines); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := sess.Commit(); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return sale, nil
}

// Delete removes a sale. Non-leaf sales release their reserved stock first;
// settlement leaves credit their amount back onto a surviving parent.
func (s *SaleService) Delete(ctx context.Context, id string) error {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSaleOp("delete", result, time.Since(start))
	}()

	if err := deleteObligation(ctx, s.store, s.clock, ledger.KindReceivable, id); err != nil {
		result = metrics.ResultError
		return err
	}
	return nil
}

// deleteObligation removes an obligation of either family. Receivable stock
// is restored before the row goes; a settlement leaf re-credits its amount
// onto its parent when the parent still exists. A missing parent means the
// leaf is deleted with no compensating credit.
func deleteObligation(ctx context.Context, store Store, clock Clock, kind ledger.ObligationKind, id string) error {
	sess, err := store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Rollback() }()

	o, err := sess.Obligations().GetForUpdate(ctx, kind, id)
	if err != nil {
		return err
	}

	if o.IsLeaf() {
		parent, err := sess.Obligations().GetForUpdate(ctx, kind, o.ParentID)
		switch {
		case err == nil:
			parent.Amount = parent.Amount.Add(o.Amount)
			parent.SettledDate = nil
			parent.SettledBy = ""
			parent.UpdatedAt = clock.Now()
			if err := sess.Obligations().Update(ctx, parent); err != nil {
				return err
			}
		case errors.Is(err, ledger.ErrNotFound):
			// Orphaned leaf: the credit has nowhere to go.
		default:
			return err
		}
	} else if kind == ledger.KindReceivable {
		if err := releaseForSale(ctx, sess.Stock(), o.Lines); err != nil {
			return err
		}
	}

	if err := sess.Obligations().Delete(ctx, kind, id); err != nil {
		return err
	}
	return sess.Commit()
}
