package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"backoffice-ledger/internal/ledger/application"
	ledger "backoffice-ledger/internal/ledger/domain"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store hands out transaction-backed sessions over a connection pool.
type Store struct {
	db *sql.DB
}

// NewStore constructs a store.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("postgres store: nil db")
	}
	return &Store{db: db}, nil
}

// Begin opens one transaction. Row locks taken through the session are held
// until Commit or Rollback.
func (s *Store) Begin(ctx context.Context) (application.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &session{tx: tx}, nil
}

type session struct {
	tx *sql.Tx
}

func (s *session) Obligations() application.ObligationRepository {
	return NewObligationRepository(s.tx)
}

func (s *session) Stock() application.StockRepository {
	return NewStockRepository(s.tx)
}

func (s *session) Commit() error {
	return s.tx.Commit()
}

// Rollback is a no-op after Commit, so it is safe to defer unconditionally.
func (s *session) Rollback() error {
	err := s.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

const fkViolationCode = "23503"

// mapStoreError translates driver errors into the ledger taxonomy.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == fkViolationCode {
		return ledger.ErrForeignKeyInUse
	}
	return err
}
