package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"backoffice-ledger/internal/ledger/application"
	ledger "backoffice-ledger/internal/ledger/domain"
)

func recordSale(t *testing.T, f *fixture, productID, quantity string) *ledger.Obligation {
	t.Helper()
	sale, err := f.sales.Record(context.Background(), application.SaleInput{
		ClientID:   "client-1",
		OriginDate: testDay,
		DueDate:    testDay.AddDate(0, 1, 0),
		Lines:      []ledger.ReservationLine{{ProductID: productID, Quantity: dec(quantity)}},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	return sale
}

func TestSettlePartialThenFull(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", "Widget", "2.00", "10")
	ctx := context.Background()

	sale := recordSale(t, f, "p-1", "4")

	leaf, err := f.settlements.Settle(ctx, ledger.KindReceivable, sale.ID, dec("3.00"), testDay, "user-1")
	if err != nil {
		t.Fatalf("partial settle: %v", err)
	}
	if !leaf.IsLeaf() || !leaf.IsSettled() {
		t.Fatal("partial settle must return a settled leaf")
	}
	if !leaf.Amount.Equal(dec("3.00")) || leaf.ParentID != sale.ID {
		t.Fatalf("leaf = %+v", leaf)
	}

	parent := f.store.Obligation(ledger.KindReceivable, sale.ID)
	if !parent.Amount.Equal(dec("5.00")) {
		t.Fatalf("outstanding = %s, want 5.00", parent.Amount)
	}
	if parent.IsSettled() {
		t.Fatal("parent must stay open")
	}

	closed, err := f.settlements.Settle(ctx, ledger.KindReceivable, sale.ID, dec("5.00"), testDay, "user-1")
	if err != nil {
		t.Fatalf("closing settle: %v", err)
	}
	if closed.ID != sale.ID {
		t.Fatalf("closing settlement row = %s, want the original", closed.ID)
	}
	if !closed.IsSettled() {
		t.Fatal("original must be settled")
	}
	if !closed.Amount.Equal(dec("5.00")) {
		t.Fatalf("closed amount = %s, want 5.00", closed.Amount)
	}

	leaves := f.store.Leaves(ledger.KindReceivable, sale.ID)
	if len(leaves) != 1 {
		t.Fatalf("leaves = %d, want 1", len(leaves))
	}

	// Money conservation: outstanding plus leaves equals the total sold.
	total := closed.Amount
	for _, l := range leaves {
		total = total.Add(l.Amount)
	}
	if !total.Equal(dec("8.00")) {
		t.Fatalf("conservation broken: %s", total)
	}
}

func TestSettleSettledObligationRejected(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", "Widget", "2.00", "10")
	ctx := context.Background()

	sale := recordSale(t, f, "p-1", "4")
	if _, err := f.settlements.Settle(ctx, ledger.KindReceivable, sale.ID, dec("8.00"), testDay, "user-1"); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	if _, err := f.settlements.Settle(ctx, ledger.KindReceivable, sale.ID, dec("8.00"), testDay, "user-1"); !errors.Is(err, ledger.ErrAlreadySettled) {
		t.Fatalf("second settle: %v", err)
	}
}

func TestSettleLeafRejected(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", "Widget", "2.00", "10")
	ctx := context.Background()

	sale := recordSale(t, f, "p-1", "4")
	leaf, err := f.settlements.Settle(ctx, ledger.KindReceivable, sale.ID, dec("3.00"), testDay, "user-1")
	if err != nil {
		t.Fatalf("partial settle: %v", err)
	}
	if _, err := f.settlements.Settle(ctx, ledger.KindReceivable, leaf.ID, dec("1.00"), testDay, "user-1"); !errors.Is(err, ledger.ErrAlreadySettled) {
		t.Fatalf("settle leaf: %v", err)
	}
}

func TestSettleOverpaymentRejectedAndNothingPersisted(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", "Widget", "2.00", "10")
	ctx := context.Background()

	sale := recordSale(t, f, "p-1", "4")
	_, err := f.settlements.Settle(ctx, ledger.KindReceivable, sale.ID, dec("9.00"), testDay, "user-1")
	var overpay *ledger.OverpaymentError
	if !errors.As(err, &overpay) {
		t.Fatalf("expected OverpaymentError, got %v", err)
	}

	stored := f.store.Obligation(ledger.KindReceivable, sale.ID)
	if stored.IsSettled() || !stored.Amount.Equal(dec("8.00")) {
		t.Fatalf("rejected settle mutated the row: %+v", stored)
	}
	if leaves := f.store.Leaves(ledger.KindReceivable, sale.ID); len(leaves) != 0 {
		t.Fatalf("leaves = %d, want 0", len(leaves))
	}
}

func TestSettleUnknownObligation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.settlements.Settle(context.Background(), ledger.KindReceivable, "ghost", dec("1.00"), testDay, "user-1"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("unknown obligation: %v", err)
	}
}

func TestSettleConcurrentOnlyOneCloses(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", "Widget", "2.00", "10")
	ctx := context.Background()

	sale := recordSale(t, f, "p-1", "4")

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.settlements.Settle(ctx, ledger.KindReceivable, sale.ID, dec("8.00"), testDay, "user-1")
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
	if okCount != 1 || settledCount != 1 {
		t.Fatalf("ok=%d alreadySettled=%d, want exactly one winner", okCount, settledCount)
	}

	stored := f.store.Obligation(ledger.KindReceivable, sale.ID)
	if !stored.IsSettled() || !stored.Amount.Equal(dec("8.00")) {
		t.Fatalf("stored = %+v", stored)
	}
	if leaves := f.store.Leaves(ledger.KindReceivable, sale.ID); len(leaves) != 0 {
		t.Fatalf("leaves = %d, want 0", len(leaves))
	}
}

func TestSettleConservationAcrossManyPartials(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", "Widget", "25.00", "10")
	ctx := context.Background()

	sale := recordSale(t, f, "p-1", "4") // 100.00

	for _, tender := range []string{"12.34", "40.00", "0.16", "47.50"} {
		if _, err := f.settlements.Settle(ctx, ledger.KindReceivable, sale.ID, dec(tender), testDay, "user-1"); err != nil {
			t.Fatalf("settle %s: %v", tender, err)
		}
	}

	parent := f.store.Obligation(ledger.KindReceivable, sale.ID)
	if !parent.IsSettled() {
		t.Fatalf("parent open with %s outstanding", parent.Amount)
	}
	total := parent.Amount
	for _, leaf := range f.store.Leaves(ledger.KindReceivable, sale.ID) {
		total = total.Add(leaf.Amount)
	}
	if !total.Equal(dec("100.00")) {
		t.Fatalf("conservation broken: %s", total)
	}
}

func TestSettlePayableSymmetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expense, err := f.expenses.Register(ctx, application.ExpenseInput{
		SupplierID:  "supplier-1",
		Description: "rent",
		Amount:      dec("100.00"),
		OriginDate:  testDay,
		DueDate:     testDay.AddDate(0, 0, 14),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	leaf, err := f.settlements.Settle(ctx, ledger.KindPayable, expense.ID, dec("40.00"), testDay, "user-1")
	if err != nil {
		t.Fatalf("partial settle: %v", err)
	}
	if leaf.Kind != ledger.KindPayable || !leaf.IsLeaf() {
		t.Fatalf("leaf = %+v", leaf)
	}

	parent := f.store.Obligation(ledger.KindPayable, expense.ID)
	if !parent.Amount.Equal(decimal.RequireFromString("60.00")) {
		t.Fatalf("outstanding = %s, want 60.00", parent.Amount)
	}
}
