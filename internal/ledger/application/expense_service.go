package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	ledger "backoffice-ledger/internal/ledger/domain"
	"backoffice-ledger/internal/observability/metrics"
)

// ExpenseService registers and deletes supplier expenses.
type ExpenseService struct {
	store Store
	clock Clock
	ids   IDFactory
}

// NewExpenseService constructs a service.
func NewExpenseService(store Store, clock Clock, ids IDFactory) (*ExpenseService, error) {
	if store == nil {
		return nil, errors.New("expense service: nil store")
	}
	if clock == nil {
		return nil, errors.New("expense service: nil clock")
	}
	if ids == nil {
		return nil, errors.New("expense service: nil id factory")
	}
	return &ExpenseService{store: store, clock: clock, ids: ids}, nil
}

// ExpenseInput describes an expense to register.
type ExpenseInput struct {
	SupplierID  string
	Description string
	Amount      decimal.Decimal
	OriginDate  time.Time
	DueDate     time.Time
}

// Register creates a payable obligation.
func (s *ExpenseService) Register(ctx context.Context, input ExpenseInput) (*ledger.Obligation, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExpenseOp("register", result, time.Since(start))
	}()

	expense, err := ledger.NewPayable(s.ids.NewID(), input.SupplierID, input.Description, input.OriginDate, input.DueDate, input.Amount)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	now := s.clock.Now()
	expense.CreatedAt = now
	expense.UpdatedAt = now

	sess, err := s.store.Begin(ctx)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	defer func() { _ = sess.Rollback() }()

	if err := sess.Obligations().Insert(ctx, expense); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := sess.Commit(); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return expense, nil
}

// Delete removes an expense. Deleting a settlement leaf credits its amount
// back onto the parent's outstanding balance when the parent still exists.
func (s *ExpenseService) Delete(ctx context.Context, id string) error {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExpenseOp("delete", result, time.Since(start))
	}()

	if err := deleteObligation(ctx, s.store, s.clock, ledger.KindPayable, id); err != nil {
		result = metrics.ResultError
		return err
	}
	return nil
}
