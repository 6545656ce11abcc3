package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	ledger "backoffice-ledger/internal/ledger/domain"
)

const (
	stockLinesTable    = "stock_lines"
	replenishmentTable = "replenishment_entries"
)

// StockRepository is a Postgres implementation for stock lines.
type StockRepository struct {
	db DBTX
}

// NewStockRepository constructs a repository over a db or transaction.
func NewStockRepository(db DBTX) *StockRepository {
	return &StockRepository{db: db}
}

// GetForUpdate loads a stock line and locks its row for the transaction.
// Concurrent reservations against the same product serialize here.
func (r *StockRepository) GetForUpdate(ctx context.Context, productID string) (*ledger.StockLine, error) {
	return r.get(ctx, productID, true)
}

// Get loads a stock line without locking.
func (r *StockRepository) Get(ctx context.Context, productID string) (*ledger.StockLine, error) {
	return r.get(ctx, productID, false)
}

func (r *StockRepository) get(ctx context.Context, productID string, lock bool) (*ledger.StockLine, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("stock repo: nil db")
	}
	if productID == "" {
		return nil, ledger.ErrEmptyProductID
	}

	query := fmt.Sprintf(`
SELECT product_id, name, unit, unit_price, quantity_on_hand, created_at, updated_at
FROM %s
WHERE product_id = $1`, stockLinesTable)
	if lock {
		query += "\nFOR UPDATE"
	}

	var line ledger.StockLine
	row := r.db.QueryRowContext(ctx, query, productID)
	if err := row.Scan(
		&line.ProductID,
		&line.Name,
		&line.Unit,
		&line.UnitPrice,
		&line.QuantityOnHand,
		&line.CreatedAt,
		&line.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	line.CreatedAt = line.CreatedAt.UTC()
	line.UpdatedAt = line.UpdatedAt.UTC()
	return &line, nil
}

// Create inserts a stock line for a new product.
func (r *StockRepository) Create(ctx context.Context, line *ledger.StockLine) error {
	if r == nil || r.db == nil {
		return errors.New("stock repo: nil db")
	}
	if line == nil {
		return errors.New("stock repo: nil stock line")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	product_id, name, unit, unit_price, quantity_on_hand, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)`, stockLinesTable)

	_, err := r.db.ExecContext(
		ctx,
		query,
		line.ProductID,
		line.Name,
		line.Unit,
		line.UnitPrice,
		line.QuantityOnHand,
		line.CreatedAt.UTC(),
		line.UpdatedAt.UTC(),
	)
	return mapStoreError(err)
}

// AdjustQuantity adds delta to quantity on hand. Callers hold the row lock
// and have validated the resulting quantity stays non-negative; the CHECK
// constraint backs that up.
func (r *StockRepository) AdjustQuantity(ctx context.Context, productID string, delta decimal.Decimal) error {
	if r == nil || r.db == nil {
		return errors.New("stock repo: nil db")
	}
	if productID == "" {
		return ledger.ErrEmptyProductID
	}

	query := fmt.Sprintf(`
UPDATE %s SET
	quantity_on_hand = quantity_on_hand + $2,
	updated_at = NOW()
WHERE product_id = $1`, stockLinesTable)

	res, err := r.db.ExecContext(ctx, query, productID, delta)
	if err != nil {
		return mapStoreError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// AppendReplenishment writes one immutable history entry.
func (r *StockRepository) AppendReplenishment(ctx context.Context, entry *ledger.ReplenishmentEntry) error {
	if r == nil || r.db == nil {
		return errors.New("stock repo: nil db")
	}
	if entry == nil {
		return errors.New("stock repo: nil replenishment entry")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, product_id, quantity_added, total_cost, note, actor_id, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)`, replenishmentTable)

	_, err := r.db.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.ProductID,
		entry.QuantityAdded,
		entry.TotalCost,
		entry.Note,
		entry.ActorID,
		entry.CreatedAt.UTC(),
	)
	return mapStoreError(err)
}
