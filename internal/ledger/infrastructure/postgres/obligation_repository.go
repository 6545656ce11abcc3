package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	ledger "backoffice-ledger/internal/ledger/domain"
)

const (
	receivablesTable = "receivables"
	payablesTable    = "payables"
	lineItemsTable   = "sale_line_items"
)

func tableFor(kind ledger.ObligationKind) (string, error) {
	switch kind {
	case ledger.KindReceivable:
		return receivablesTable, nil
	case ledger.KindPayable:
		return payablesTable, nil
	}
	return "", fmt.Errorf("obligation repo: unknown kind %q", kind)
}

// ObligationRepository is a Postgres implementation for obligations.
type ObligationRepository struct {
	db DBTX
}

// NewObligationRepository constructs a repository over a db or transaction.
func NewObligationRepository(db DBTX) *ObligationRepository {
	return &ObligationRepository{db: db}
}

// GetForUpdate loads an obligation and locks its row for the transaction.
func (r *ObligationRepository) GetForUpdate(ctx context.Context, kind ledger.ObligationKind, id string) (*ledger.Obligation, error) {
	return r.get(ctx, kind, id, true)
}

// Get loads an obligation without locking.
func (r *ObligationRepository) Get(ctx context.Context, kind ledger.ObligationKind, id string) (*ledger.Obligation, error) {
	return r.get(ctx, kind, id, false)
}

func (r *ObligationRepository) get(ctx context.Context, kind ledger.ObligationKind, id string, lock bool) (*ledger.Obligation, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("obligation repo: nil db")
	}
	if id == "" {
		return nil, ledger.ErrEmptyID
	}
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT id, description, amount, origin_date, due_date, settled_date, settled_by,
	counterparty_id, parent_obligation_id, created_at, updated_at
FROM %s
WHERE id = $1`, table)
	if lock {
		query += "\nFOR UPDATE"
	}

	var o ledger.Obligation
	o.Kind = kind
	var settledDate sql.NullTime
	var settledBy, counterparty, parent sql.NullString
	row := r.db.QueryRowContext(ctx, query, id)
	if err := row.Scan(
		&o.ID,
		&o.Description,
		&o.Amount,
		&o.OriginDate,
		&o.DueDate,
		&settledDate,
		&settledBy,
		&counterparty,
		&parent,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	if settledDate.Valid {
		settled := settledDate.Time.UTC()
		o.SettledDate = &settled
	}
	if settledBy.Valid {
		o.SettledBy = settledBy.String
	}
	if counterparty.Valid {
		o.CounterpartyID = counterparty.String
	}
	if parent.Valid {
		o.ParentID = parent.String
	}
	o.OriginDate = o.OriginDate.UTC()
	o.DueDate = o.DueDate.UTC()
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()

	if kind == ledger.KindReceivable {
		lines, err := r.listLines(ctx, id)
		if err != nil {
			return nil, err
		}
		o.Lines = lines
	}
	return &o, nil
}

func (r *ObligationRepository) listLines(ctx context.Context, obligationID string) ([]ledger.LineItem, error) {
	query := fmt.Sprintf(`
SELECT product_id, product_name, unit, quantity, unit_price, line_total
FROM %s
WHERE obligation_id = $1
ORDER BY position ASC`, lineItemsTable)

	rows, err := r.db.QueryContext(ctx, query, obligationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.LineItem
	for rows.Next() {
		var item ledger.LineItem
		if err := rows.Scan(
			&item.ProductID,
			&item.ProductName,
			&item.Unit,
			&item.Quantity,
			&item.UnitPrice,
			&item.LineTotal,
		); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Insert persists a new obligation, including line items for receivables.
func (r *ObligationRepository) Insert(ctx context.Context, o *ledger.Obligation) error {
	if r == nil || r.db == nil {
		return errors.New("obligation repo: nil db")
	}
	if o == nil {
		return ledger.ErrNilObligation
	}
	table, err := tableFor(o.Kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, description, amount, origin_date, due_date, settled_date, settled_by,
	counterparty_id, parent_obligation_id, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)`, table)

	var settledDate sql.NullTime
	if o.SettledDate != nil {
		settledDate = sql.NullTime{Time: o.SettledDate.UTC(), Valid: true}
	}
	_, err = r.db.ExecContext(
		ctx,
		query,
		o.ID,
		o.Description,
		o.Amount,
		o.OriginDate.UTC(),
		o.DueDate.UTC(),
		settledDate,
		nullString(o.SettledBy),
		nullString(o.CounterpartyID),
		nullString(o.ParentID),
		o.CreatedAt.UTC(),
		o.UpdatedAt.UTC(),
	)
	if err != nil {
		return mapStoreError(err)
	}

	if o.Kind == ledger.KindReceivable && len(o.Lines) > 0 {
		if err := r.insertLines(ctx, o.ID, o.Lines); err != nil {
			return err
		}
	}
	return nil
}

func (r *ObligationRepository) insertLines(ctx context.Context, obligationID string, lines []ledger.LineItem) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	obligation_id, position, product_id, product_name, unit, quantity, unit_price, line_total
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)`, lineItemsTable)

	for i, item := range lines {
		_, err := r.db.ExecContext(
			ctx,
			query,
			obligationID,
			i,
			item.ProductID,
			item.ProductName,
			item.Unit,
			item.Quantity,
			item.UnitPrice,
			item.LineTotal,
		)
		if err != nil {
			return mapStoreError(err)
		}
	}
	return nil
}

// Update persists amount, settled stamps and descriptive fields.
func (r *ObligationRepository) Update(ctx context.Context, o *ledger.Obligation) error {
	if r == nil || r.db == nil {
		return errors.New("obligation repo: nil db")
	}
	if o == nil {
		return ledger.ErrNilObligation
	}
	table, err := tableFor(o.Kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
UPDATE %s SET
	description = $2,
	amount = $3,
	origin_date = $4,
	due_date = $5,
	settled_date = $6,
	settled_by = $7,
	counterparty_id = $8,
	updated_at = $9
WHERE id = $1`, table)

	var settledDate sql.NullTime
	if o.SettledDate != nil {
		settledDate = sql.NullTime{Time: o.SettledDate.UTC(), Valid: true}
	}
	res, err := r.db.ExecContext(
		ctx,
		query,
		o.ID,
		o.Description,
		o.Amount,
		o.OriginDate.UTC(),
		o.DueDate.UTC(),
		settledDate,
		nullString(o.SettledBy),
		nullString(o.CounterpartyID),
		o.UpdatedAt.UTC(),
	)
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

// ReplaceLines swaps the sale's line-item snapshot.
func (r *ObligationRepository) ReplaceLines(ctx context.Context, id string, lines []ledger.LineItem) error {
	if r == nil || r.db == nil {
		return errors.New("obligation repo: nil db")
	}
	if id == "" {
		return ledger.ErrEmptyID
	}

	deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE obligation_id = $1", lineItemsTable)
	if _, err := r.db.ExecContext(ctx, deleteQuery, id); err != nil {
		return mapStoreError(err)
	}
	return r.insertLines(ctx, id, lines)
}

// Delete removes the obligation. Settlement leaves pointing at the deleted
// row stay behind as orphans; line items cascade with the receivable.
func (r *ObligationRepository) Delete(ctx context.Context, kind ledger.ObligationKind, id string) error {
	if r == nil || r.db == nil {
		return errors.New("obligation repo: nil db")
	}
	if id == "" {
		return ledger.ErrEmptyID
	}
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", table)
	res, err := r.db.ExecContext(ctx, query, id)
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

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
