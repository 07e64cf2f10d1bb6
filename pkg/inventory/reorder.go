package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ReorderResult reports a reorder snapshot recompute.
type ReorderResult struct {
	GeneratedAt    time.Time
	Rows           []ShoppingRow
	NegativeOnHand []string
	InvalidRows    []string
}

// Flagged is the number of products needing reorder.
func (result ReorderResult) Flagged() int {
	return len(result.Rows)
}

// BuildReorderSnapshot flags every active catalog product at or below its reorder point.
// Products without a positive reorder point are never tracked.
func BuildReorderSnapshot(generatedAt time.Time, catalog []CatalogEntry, purchases []PurchaseEvent, usage []UsageEvent, adjustments []AdjustmentEvent) []ShoppingRow {
	totals := aggregateStock(purchases, usage, adjustments, BusinessDate{})
	var rows []ShoppingRow
	seen := make(map[string]struct{}, len(catalog))
	for _, entry := range catalog {
		if _, duplicate := seen[entry.UPC.String()]; duplicate {
			continue
		}
		seen[entry.UPC.String()] = struct{}{}
		if !entry.Active || !entry.ReorderPoint.IsPositive() {
			continue
		}
		reading := totals.reading(entry.UPC, entry.BaseUnit)
		if reading.OnHand.GreaterThan(entry.ReorderPoint) {
			continue
		}
		target := entry.ReorderPoint
		if entry.ParLevel.IsPositive() {
			target = entry.ParLevel
		}
		row := ShoppingRow{
			Timestamp:       generatedAt,
			UPC:             entry.UPC,
			ProductName:     entry.ProductName,
			OnHand:          reading.OnHand,
			BaseUnit:        reading.BaseUnit,
			ReorderPoint:    entry.ReorderPoint,
			ParLevel:        entry.ParLevel,
			QtyToOrder:      decimal.Max(decimal.Zero, target.Sub(reading.OnHand)),
			PreferredVendor: entry.PreferredVendor,
			DefaultLocation: entry.DefaultLocation,
		}
		if reading.IsNegative() {
			row.Note = negativeOnHandNote
		}
		rows = append(rows, row)
	}
	return rows
}

// RecomputeReorder rebuilds the reorder snapshot and replaces the stored one wholesale.
// On-hand includes lifetime adjustments, so a snapshot row can differ from a
// purchases-minus-usage reading for the same product.
func (service *Service) RecomputeReorder(ctx context.Context) (ReorderResult, error) {
	result := ReorderResult{GeneratedAt: service.nowFn()}
	table := service.tables.ReorderTable()
	operationError := service.withLock(ctx, lockKey(lockPrefixOrder, table.Name), func(ctx context.Context) error {
		loaded, err := service.readLedgers(ctx)
		if err != nil {
			return err
		}
		result.InvalidRows = loaded.issues
		result.Rows = BuildReorderSnapshot(result.GeneratedAt, loaded.catalog, loaded.purchases, loaded.usage, loaded.adjustments)
		values := make([]Row, 0, len(result.Rows))
		for _, row := range result.Rows {
			if row.OnHand.IsNegative() {
				result.NegativeOnHand = append(result.NegativeOnHand, row.UPC.String())
			}
			values = append(values, shoppingRowValues(row, true))
		}
		return service.store.Overwrite(ctx, table, values)
	})
	service.logOperation(ctx, OperationLog{
		Operation:    operationRecomputeReorder,
		BusinessDate: service.calendar.DateOf(result.GeneratedAt),
		RowsWritten:  len(result.Rows),
		Warnings:     len(result.NegativeOnHand) + len(result.InvalidRows),
		Error:        operationError,
	})
	return result, operationError
}
