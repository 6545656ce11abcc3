package application

import (
	"context"

	"github.com/shopspring/decimal"

	ledger "backoffice-ledger/internal/ledger/domain"
)

// reserveForSale locks, validates and decrements stock for all lines of one
// sale as a unit. Every line is locked and checked before any quantity moves,
// so a shortfall on the N-th line leaves all stock untouched. Returns the
// line snapshots and the sale total.
func reserveForSale(ctx context.Context, stock StockRepository, lines []ledger.ReservationLine) ([]ledger.LineItem, decimal.Decimal, error) {
	if len(lines) == 0 {
		return nil, decimal.Zero, ledger.ErrNoLines
	}

	seen := make(map[string]struct{}, len(lines))
	locked := make([]*ledger.StockLine, len(lines))
	for i, line := range lines {
		if line.ProductID == "" {
			return nil, decimal.Zero, ledger.ErrEmptyProductID
		}
		if _, dup := seen[line.ProductID]; dup {
			return nil, decimal.Zero, ledger.ErrDuplicateProduct
		}
		seen[line.ProductID] = struct{}{}
		if line.Quantity.Sign() <= 0 {
			return nil, decimal.Zero, ledger.ErrNonPositiveQuantity
		}

		stockLine, err := stock.GetForUpdate(ctx, line.ProductID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if stockLine.QuantityOnHand.LessThan(line.Quantity) {
			return nil, decimal.Zero, &ledger.InsufficientStockError{
				ProductID: line.ProductID,
				Available: stockLine.QuantityOnHand,
				Requested: line.Quantity,
			}
		}
		locked[i] = stockLine
	}

	items := make([]ledger.LineItem, len(lines))
	total := decimal.Zero
	for i, line := range lines {
		if err := stock.AdjustQuantity(ctx, line.ProductID, line.Quantity.Neg()); err != nil {
			return nil, decimal.Zero, err
		}
		unitPrice := locked[i].UnitPrice
		if line.ManualUnitPrice != nil {
			unitPrice = *line.ManualUnitPrice
		}
		lineTotal := line.Quantity.Mul(unitPrice)
		items[i] = ledger.LineItem{
			ProductID:   line.ProductID,
			ProductName: locked[i].Name,
			Unit:        locked[i].Unit,
			Quantity:    line.Quantity,
			UnitPrice:   unitPrice,
			LineTotal:   lineTotal,
		}
		total = total.Add(lineTotal)
	}
	return items, total, nil
}

// releaseForSale restores the quantities recorded in the sale's line items.
// Used when a sale is deleted and before an edit re-reserves new lines.
func releaseForSale(ctx context.Context, stock StockRepository, items []ledger.LineItem) error {
	for _, item := range items {
		if _, err := stock.GetForUpdate(ctx, item.ProductID); err != nil {
			return err
		}
		if err := stock.AdjustQuantity(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}
