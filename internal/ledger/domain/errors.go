package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when the target obligation or product is missing.
	ErrNotFound = errors.New("ledger: not found")
	// ErrAlreadySettled is returned when settling an obligation that is already closed.
	ErrAlreadySettled = errors.New("ledger: obligation already settled")
	// ErrForeignKeyInUse is returned when a delete is blocked by existing references.
	ErrForeignKeyInUse = errors.New("ledger: row is referenced elsewhere")
	// ErrNonPositiveTender is returned when the tendered amount is zero or negative.
	ErrNonPositiveTender = errors.New("ledger: tendered amount must be positive")
	// ErrInvalidSettlementDate is returned when the settlement date is zero.
	ErrInvalidSettlementDate = errors.New("ledger: invalid settlement date")
	// ErrEmptyID is returned when an obligation id is empty.
	ErrEmptyID = errors.New("ledger: empty id")
	// ErrEmptyProductID is returned when a product id is empty.
	ErrEmptyProductID = errors.New("ledger: empty product id")
	// ErrNoLines is returned when a sale carries no line items.
	ErrNoLines = errors.New("ledger: sale requires at least one line item")
	// ErrDuplicateProduct is returned when a sale lists the same product twice.
	ErrDuplicateProduct = errors.New("ledger: duplicate product in line items")
	// ErrNonPositiveQuantity is returned when a quantity is zero or negative.
	ErrNonPositiveQuantity = errors.New("ledger: quantity must be positive")
	// ErrNegativeAmount is returned when a monetary amount is negative.
	ErrNegativeAmount = errors.New("ledger: negative amount")
	// ErrNilObligation is returned when an operation receives a nil obligation.
	ErrNilObligation = errors.New("ledger: nil obligation")
)

// InsufficientStockError reports the first line whose requested quantity
// exceeds the quantity on hand. The whole reservation fails; no stock moves.
type InsufficientStockError struct {
	ProductID string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("ledger: insufficient stock for product %s: available %s, requested %s",
		e.ProductID, e.Available, e.Requested)
}

// OverpaymentError reports a tendered amount above the outstanding balance.
type OverpaymentError struct {
	ObligationID string
	Outstanding  decimal.Decimal
	Tendered     decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("ledger: overpayment on obligation %s: outstanding %s, tendered %s",
		e.ObligationID, e.Outstanding, e.Tendered)
}
