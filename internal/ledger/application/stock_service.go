package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	ledger "backoffice-ledger/internal/ledger/domain"
	"backoffice-ledger/internal/observability/metrics"
)

// StockService creates products and records replenishments.
type StockService struct {
	store Store
	clock Clock
	ids   IDFactory
}

// NewStockService constructs a service.
func NewStockService(store Store, clock Clock, ids IDFactory) (*StockService, error) {
	if store == nil {
		return nil, errors.New("stock service: nil store")
	}
	if clock == nil {
		return nil, errors.New("stock service: nil clock")
	}
	if ids == nil {
		return nil, errors.New("stock service: nil id factory")
	}
	return &StockService{store: store, clock: clock, ids: ids}, nil
}

// ProductInput describes a new product.
type ProductInput struct {
	ProductID     string
	Name          string
	Unit          string
	UnitPrice     decimal.Decimal
	InitialOnHand decimal.Decimal
}

// CreateProduct seeds a stock line for a new product.
func (s *StockService) CreateProduct(ctx context.Context, input ProductInput) (*ledger.StockLine, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveStockOp("create", result, time.Since(start))
	}()

	line, err := ledger.NewStockLine(input.ProductID, input.Name, input.Unit, input.UnitPrice, input.InitialOnHand)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	now := s.clock.Now()
	line.CreatedAt = now
	line.UpdatedAt = now

	sess, err := s.store.Begin(ctx)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	defer func() { _ = sess.Rollback() }()

	if err := sess.Stock().Create(ctx, line); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := sess.Commit(); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return line, nil
}

// Replenish increments the product's quantity on hand and appends an
// immutable history entry for audit.
func (s *StockService) Replenish(ctx context.Context, productID string, quantityAdded, totalCost decimal.Decimal, note, actorID string) (*ledger.StockLine, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveStockOp("replenish", result, time.Since(start))
	}()

	entry, err := ledger.NewReplenishmentEntry(s.ids.NewID(), productID, quantityAdded, totalCost, note, actorID, s.clock.Now())
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	sess, err := s.store.Begin(ctx)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	defer func() { _ = sess.Rollback() }()

	line, err := sess.Stock().GetForUpdate(ctx, productID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := sess.Stock().AdjustQuantity(ctx, productID, quantityAdded); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := sess.Stock().AppendReplenishment(ctx, entry); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := sess.Commit(); err != nil {
		result = metrics.ResultError
		return nil, err
	}

	line.QuantityOnHand = line.QuantityOnHand.Add(quantityAdded)
	line.UpdatedAt = entry.CreatedAt
	return line, nil
}
