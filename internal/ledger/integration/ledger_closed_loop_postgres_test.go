package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"backoffice-ledger/internal/ledger/application"
	ledger "backoffice-ledger/internal/ledger/domain"
	ledgerpostgres "backoffice-ledger/internal/ledger/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func (s *seqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, table := range []string{"stock_lines", "receivables", "payables", "sale_line_items", "replenishment_entries"} {
		if !tableExists(db, table) {
			t.Skipf("missing table %s; run migrations", table)
		}
	}
	return db
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}

func cleanup(ctx context.Context, db *sql.DB, productID string) {
	_, _ = db.ExecContext(ctx, "DELETE FROM sale_line_items WHERE product_id = $1", productID)
	_, _ = db.ExecContext(ctx, "DELETE FROM receivables WHERE counterparty_id = 'client-int'")
	_, _ = db.ExecContext(ctx, "DELETE FROM payables WHERE counterparty_id = 'supplier-int'")
	_, _ = db.ExecContext(ctx, "DELETE FROM replenishment_entries WHERE product_id = $1", productID)
	_, _ = db.ExecContext(ctx, "DELETE FROM stock_lines WHERE product_id = $1", productID)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func onHand(t *testing.T, db *sql.DB, productID string) decimal.Decimal {
	t.Helper()
	var raw string
	err := db.QueryRow("SELECT quantity_on_hand FROM stock_lines WHERE product_id = $1", productID).Scan(&raw)
	if err != nil {
		t.Fatalf("load on hand: %v", err)
	}
	return dec(raw)
}

func TestSaleSettlementClosedLoopPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	productID := "p-int-001"
	cleanup(ctx, db, productID)
	t.Cleanup(func() { cleanup(ctx, db, productID) })

	store, err := ledgerpostgres.NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := fixedClock{now: day}
	ids := &seqIDs{prefix: "int"}

	stockService, err := application.NewStockService(store, clock, ids)
	if err != nil {
		t.Fatalf("new stock service: %v", err)
	}
	saleService, err := application.NewSaleService(store, clock, ids)
	if err != nil {
		t.Fatalf("new sale service: %v", err)
	}
	settlementService, err := application.NewSettlementService(store, clock, ids)
	if err != nil {
		t.Fatalf("new settlement service: %v", err)
	}

	if _, err := stockService.CreateProduct(ctx, application.ProductInput{
		ProductID:     productID,
		Name:          "Integration widget",
		Unit:          "pc",
		UnitPrice:     dec("2.00"),
		InitialOnHand: dec("10"),
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	sale, err := saleService.Record(ctx, application.SaleInput{
		ClientID:   "client-int",
		OriginDate: day,
		DueDate:    day.AddDate(0, 1, 0),
		Lines:      []ledger.ReservationLine{{ProductID: productID, Quantity: dec("4")}},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if !sale.Amount.Equal(dec("8.00")) {
		t.Fatalf("sale amount = %s", sale.Amount)
	}
	if got := onHand(t, db, productID); !got.Equal(dec("6")) {
		t.Fatalf("on hand = %s, want 6", got)
	}

	leaf, err := settlementService.Settle(ctx, ledger.KindReceivable, sale.ID, dec("3.00"), day, "user-int")
	if err != nil {
		t.Fatalf("partial settle: %v", err)
	}
	if !leaf.IsLeaf() || leaf.ParentID != sale.ID {
		t.Fatalf("leaf = %+v", leaf)
	}

	closed, err := settlementService.Settle(ctx, ledger.KindReceivable, sale.ID, dec("5.00"), day, "user-int")
	if err != nil {
		t.Fatalf("closing settle: %v", err)
	}
	if closed.ID != sale.ID || !closed.IsSettled() {
		t.Fatalf("closed = %+v", closed)
	}

	// Conservation: outstanding plus leaves equals the amount sold.
	var total string
	err = db.QueryRow(`
SELECT COALESCE(SUM(amount), 0)
FROM receivables
WHERE id = $1 OR parent_obligation_id = $1`, sale.ID).Scan(&total)
	if err != nil {
		t.Fatalf("sum amounts: %v", err)
	}
	if !dec(total).Equal(dec("8.00")) {
		t.Fatalf("conservation broken: %s", total)
	}

	if err := saleService.Delete(ctx, leaf.ID); err != nil {
		t.Fatalf("delete leaf: %v", err)
	}
	if err := saleService.Delete(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	if got := onHand(t, db, productID); !got.Equal(dec("10")) {
		t.Fatalf("on hand = %s, want 10 after delete", got)
	}
}

func TestConcurrentSettlementPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	productID := "p-int-002"
	cleanup(ctx, db, productID)
	t.Cleanup(func() { cleanup(ctx, db, productID) })

	store, err := ledgerpostgres.NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := fixedClock{now: day}
	ids := &seqIDs{prefix: "race"}

	stockService, err := application.NewStockService(store, clock, ids)
	if err != nil {
		t.Fatalf("new stock service: %v", err)
	}
	saleService, err := application.NewSaleService(store, clock, ids)
	if err != nil {
		t.Fatalf("new sale service: %v", err)
	}
	settlementService, err := application.NewSettlementService(store, clock, ids)
	if err != nil {
		t.Fatalf("new settlement service: %v", err)
	}

	if _, err := stockService.CreateProduct(ctx, application.ProductInput{
		ProductID:     productID,
		Name:          "Race widget",
		Unit:          "pc",
		UnitPrice:     dec("2.00"),
		InitialOnHand: dec("10"),
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	sale, err := saleService.Record(ctx, application.SaleInput{
		ClientID:   "client-int",
		OriginDate: day,
		DueDate:    day,
		Lines:      []ledger.ReservationLine{{ProductID: productID, Quantity: dec("4")}},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	// Both tenders cover the full amount; the row lock serializes them and
	// the loser must see the already-settled row.
	const workers = 4
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := settlementService.Settle(ctx, ledger.KindReceivable, sale.ID, dec("8.00"), day, "user-int")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var okCount, settledCount int
	for err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, ledger.ErrAlreadySettled):
			settledCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if okCount != 1 || settledCount != workers-1 {
		t.Fatalf("ok=%d alreadySettled=%d", okCount, settledCount)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM receivables WHERE parent_obligation_id = $1", sale.ID).Scan(&count); err != nil {
		t.Fatalf("count leaves: %v", err)
	}
	if count != 0 {
		t.Fatalf("leaves = %d, want 0", count)
	}
}
