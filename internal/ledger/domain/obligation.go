package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// ObligationKind distinguishes the two obligation families.
type ObligationKind string

const (
	// KindReceivable is money owed to the business (a sale on credit).
	KindReceivable ObligationKind = "receivable"
	// KindPayable is money the business owes (a supplier expense).
	KindPayable ObligationKind = "payable"
)

// Obligation is a receivable or payable. Amount is the currently outstanding
// portion; the sum of Amount plus all direct settlement leaves equals the
// total ever owed for the obligation.
type Obligation struct {
	ID             string
	Kind           ObligationKind
	Description    string
	Amount         decimal.Decimal
	OriginDate     time.Time
	DueDate        time.Time
	SettledDate    *time.Time
	SettledBy      string
	CounterpartyID string
	ParentID       string
	Lines          []LineItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LineItem is a frozen snapshot of a product at sale time. Later product
// edits never alter it.
type LineItem struct {
	ProductID   string
	ProductName string
	Unit        string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// ReservationLine is one requested line of a sale before reservation.
type ReservationLine struct {
	ProductID       string
	Quantity        decimal.Decimal
	ManualUnitPrice *decimal.Decimal
}

// IsLeaf reports whether the obligation is a settlement leaf spawned by a
// partial payment. Leaves are born settled and are never re-split.
func (o *Obligation) IsLeaf() bool {
	return o != nil && o.ParentID != ""
}

// IsSettled reports whether the obligation reached its terminal state.
func (o *Obligation) IsSettled() bool {
	return o != nil && o.SettledDate != nil
}

// Clone returns a detached deep copy.
func (o *Obligation) Clone() *Obligation {
	if o == nil {
		return nil
	}
	clone := *o
	if o.SettledDate != nil {
		settled := *o.SettledDate
		clone.SettledDate = &settled
	}
	if o.Lines != nil {
		clone.Lines = make([]LineItem, len(o.Lines))
		copy(clone.Lines, o.Lines)
	}
	return &clone
}

// NewReceivable creates a sale obligation from reserved line snapshots.
// The amount is the sum of the line totals.
func NewReceivable(id, clientID, description string, origin, due time.Time, lines []LineItem) (*Obligation, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal)
	}
	if total.IsNegative() {
		return nil, ErrNegativeAmount
	}
	snapshot := make([]LineItem, len(lines))
	copy(snapshot, lines)
	return &Obligation{
		ID:             id,
		Kind:           KindReceivable,
		Description:    description,
		Amount:         total,
		OriginDate:     origin,
		DueDate:        due,
		CounterpartyID: clientID,
		Lines:          snapshot,
	}, nil
}

// NewPayable creates an expense obligation.
func NewPayable(id, supplierID, description string, origin, due time.Time, amount decimal.Decimal) (*Obligation, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	return &Obligation{
		ID:             id,
		Kind:           KindPayable,
		Description:    description,
		Amount:         amount,
		OriginDate:     origin,
		DueDate:        due,
		CounterpartyID: supplierID,
	}, nil
}
