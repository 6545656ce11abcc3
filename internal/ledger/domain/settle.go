package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Amounts are exact decimals, so equality is reliable; the tolerances keep
// the original intent of treating near-zero remainders as fully settled when
// callers tender rounded figures.
var (
	// SettleTolerance closes an obligation whose remainder after payment is
	// at or below this value.
	SettleTolerance = decimal.NewFromFloat(0.009)
	// OverpayTolerance is the slack allowed on the overpayment check, on the
	// input side only.
	OverpayTolerance = decimal.NewFromFloat(0.001)
)

// SettlementOutcome describes one applied settlement.
type SettlementOutcome struct {
	// Settlement is the row representing this settlement event: the closed
	// original on full settlement, the new leaf on partial settlement.
	Settlement *Obligation
	// Leaf is the new settled child; nil on full settlement.
	Leaf *Obligation
	// Remaining is the outstanding balance left open on the obligation.
	Remaining decimal.Decimal
	// Full reports whether the obligation reached its terminal state.
	Full bool
}

// ApplySettlement applies a tendered payment to the obligation. The caller
// must hold the row lock and have reread the obligation inside the current
// transaction. On full settlement the obligation's amount stays unchanged and
// its settled stamps are set. On partial settlement the amount is reduced in
// place and a settlement leaf born settled is returned; leafID becomes its
// identity.
func (o *Obligation) ApplySettlement(tendered decimal.Decimal, date time.Time, settledBy, leafID string) (*SettlementOutcome, error) {
	if o == nil {
		return nil, ErrNilObligation
	}
	if o.IsSettled() || o.IsLeaf() {
		return nil, ErrAlreadySettled
	}
	if tendered.Sign() <= 0 {
		return nil, ErrNonPositiveTender
	}
	if date.IsZero() {
		return nil, ErrInvalidSettlementDate
	}
	if tendered.GreaterThan(o.Amount.Add(OverpayTolerance)) {
		return nil, &OverpaymentError{
			ObligationID: o.ID,
			Outstanding:  o.Amount,
			Tendered:     tendered,
		}
	}

	remaining := o.Amount.Sub(tendered)
	if remaining.LessThanOrEqual(SettleTolerance) {
		settled := date
		o.SettledDate = &settled
		o.SettledBy = settledBy
		return &SettlementOutcome{
			Settlement: o,
			Remaining:  decimal.Zero,
			Full:       true,
		}, nil
	}

	if leafID == "" {
		return nil, ErrEmptyID
	}
	o.Amount = remaining
	settled := date
	leaf := &Obligation{
		ID:             leafID,
		Kind:           o.Kind,
		Description:    fmt.Sprintf("%s (partial payment on %s)", o.Description, o.ID),
		Amount:         tendered,
		OriginDate:     o.OriginDate,
		DueDate:        o.DueDate,
		SettledDate:    &settled,
		SettledBy:      settledBy,
		CounterpartyID: o.CounterpartyID,
		ParentID:       o.ID,
	}
	return &SettlementOutcome{
		Settlement: leaf,
		Leaf:       leaf,
		Remaining:  remaining,
	}, nil
}
