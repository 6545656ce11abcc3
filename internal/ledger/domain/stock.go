package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockLine is the per-product on-hand quantity. QuantityOnHand never goes
// negative; it is mutated only under a row lock.
type StockLine struct {
	ProductID      string
	Name           string
	Unit           string
	UnitPrice      decimal.Decimal
	QuantityOnHand decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewStockLine creates a stock line for a new product.
func NewStockLine(productID, name, unit string, unitPrice, quantityOnHand decimal.Decimal) (*StockLine, error) {
	if productID == "" {
		return nil, ErrEmptyProductID
	}
	if unitPrice.IsNegative() {
		return nil, ErrNegativeAmount
	}
	if quantityOnHand.IsNegative() {
		return nil, ErrNonPositiveQuantity
	}
	return &StockLine{
		ProductID:      productID,
		Name:           name,
		Unit:           unit,
		UnitPrice:      unitPrice,
		QuantityOnHand: quantityOnHand,
	}, nil
}

// Clone returns a detached copy.
func (s *StockLine) Clone() *StockLine {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// ReplenishmentEntry is one immutable stock replenishment for audit.
type ReplenishmentEntry struct {
	ID            string
	ProductID     string
	QuantityAdded decimal.Decimal
	TotalCost     decimal.Decimal
	Note          string
	ActorID       string
	CreatedAt     time.Time
}

// NewReplenishmentEntry validates and creates a replenishment history entry.
func NewReplenishmentEntry(id, productID string, quantityAdded, totalCost decimal.Decimal, note, actorID string, at time.Time) (*ReplenishmentEntry, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if productID == "" {
		return nil, ErrEmptyProductID
	}
	if quantityAdded.Sign() <= 0 {
		return nil, ErrNonPositiveQuantity
	}
	if totalCost.IsNegative() {
		return nil, ErrNegativeAmount
	}
	return &ReplenishmentEntry{
		ID:            id,
		ProductID:     productID,
		QuantityAdded: quantityAdded,
		TotalCost:     totalCost,
		Note:          note,
		ActorID:       actorID,
		CreatedAt:     at,
	}, nil
}
