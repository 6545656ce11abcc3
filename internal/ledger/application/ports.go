package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	ledger "backoffice-ledger/internal/ledger/domain"
)

// Store hands out one transactional session per operation. The relational
// engine's transaction and row-locking primitives are consumed through it,
// never re-implemented.
type Store interface {
	Begin(ctx context.Context) (Session, error)
}

// Session is one transaction. Rollback after a successful Commit is a no-op,
// so callers defer Rollback and get guaranteed release on every exit path.
type Session interface {
	Obligations() ObligationRepository
	Stock() StockRepository
	Commit() error
	Rollback() error
}

// ObligationRepository persists receivables and payables within a session.
type ObligationRepository interface {
	// GetForUpdate locks the obligation row for the session's transaction and
	// returns its current state. Returns ledger.ErrNotFound when missing.
	GetForUpdate(ctx context.Context, kind ledger.ObligationKind, id string) (*ledger.Obligation, error)
	Get(ctx context.Context, kind ledger.ObligationKind, id string) (*ledger.Obligation, error)
	Insert(ctx context.Context, o *ledger.Obligation) error
	// Update persists amount, settled stamps and descriptive fields. Line
	// items are replaced separately via ReplaceLines.
	Update(ctx context.Context, o *ledger.Obligation) error
	ReplaceLines(ctx context.Context, id string, lines []ledger.LineItem) error
	// Delete removes the row. Returns ledger.ErrForeignKeyInUse when existing
	// references block the delete.
	Delete(ctx context.Context, kind ledger.ObligationKind, id string) error
}

// StockRepository persists stock lines and replenishment history.
type StockRepository interface {
	// GetForUpdate locks the stock line for the session's transaction.
	// Returns ledger.ErrNotFound when missing.
	GetForUpdate(ctx context.Context, productID string) (*ledger.StockLine, error)
	Get(ctx context.Context, productID string) (*ledger.StockLine, error)
	Create(ctx context.Context, line *ledger.StockLine) error
	// AdjustQuantity adds delta (negative to decrement) to quantity on hand.
	AdjustQuantity(ctx context.Context, productID string, delta decimal.Decimal) error
	AppendReplenishment(ctx context.Context, entry *ledger.ReplenishmentEntry) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDFactory mints identifiers for new rows.
type IDFactory interface {
	NewID() string
}

// UUIDFactory mints random uuid identifiers.
type UUIDFactory struct{}

// NewID returns a new uuid string.
func (UUIDFactory) NewID() string { return uuid.NewString() }
