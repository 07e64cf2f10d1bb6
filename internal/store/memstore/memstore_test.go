package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
)

func TestStoreKeepsHeaderAndOrder(test *testing.T) {
	test.Parallel()
	store := New()
	ctx := context.Background()
	table := inventory.DefaultTables().SalesTable()
	if err := store.Append(ctx, table, []inventory.Row{{"Date": "2026-02-06", "Menu Item Clean": "Latte", inventory.ColumnQtySold: "2"}}); err != nil {
		test.Fatalf("append: %v", err)
	}
	records, err := store.ReadAll(ctx, table)
	if err != nil {
		test.Fatalf("read: %v", err)
	}
	if len(records.Header) != len(table.Columns) || records.Rows[0][inventory.ColumnMenuItem] != "Latte" {
		test.Fatalf("rows must be stored under the header: %+v", records)
	}
	records.Rows[0][inventory.ColumnMenuItem] = "mutated"
	again, err := store.ReadAll(ctx, table)
	if err != nil {
		test.Fatalf("read: %v", err)
	}
	if again.Rows[0][inventory.ColumnMenuItem] != "Latte" {
		test.Fatalf("reads must not alias stored rows")
	}
}

func TestStoreRunsDailyPipeline(test *testing.T) {
	test.Parallel()
	store := New()
	ctx := context.Background()
	tables := inventory.DefaultTables()
	seed := func(table inventory.Table, rows ...inventory.Row) {
		test.Helper()
		if err := store.Append(ctx, table, rows); err != nil {
			test.Fatalf("seed %s: %v", table.Name, err)
		}
	}
	seed(tables.CatalogTable(), inventory.Row{inventory.ColumnUPC: "MILK", inventory.ColumnReorderPoint: "10", inventory.ColumnParLevel: "20", inventory.ColumnBaseUnit: "gal"})
	seed(tables.PurchasesTable(), inventory.Row{inventory.ColumnUPC: "MILK", inventory.ColumnBaseUnitsAdded: "10.5"})
	seed(tables.SalesTable(), inventory.Row{inventory.ColumnDate: "2026-02-05", inventory.ColumnMenuItem: "Latte", inventory.ColumnQtySold: "10"})
	seed(tables.RecipesTable(), inventory.Row{inventory.ColumnMenuItem: "latte", inventory.ColumnIngredientUPC: "MILK", inventory.ColumnQtyPerItem: "0.25"})

	now := func() time.Time { return time.Date(2026, time.February, 6, 13, 0, 0, 0, time.UTC) }
	service, err := inventory.NewService(store, now)
	if err != nil {
		test.Fatalf("service: %v", err)
	}
	yesterday, err := inventory.ParseBusinessDate("2026-02-05")
	if err != nil {
		test.Fatalf("date: %v", err)
	}
	if _, err := service.RecomputeUsage(ctx, yesterday, inventory.WriteModeReplace); err != nil {
		test.Fatalf("usage: %v", err)
	}
	reorder, err := service.RecomputeReorder(ctx)
	if err != nil {
		test.Fatalf("reorder: %v", err)
	}
	if reorder.Flagged() != 1 || !reorder.Rows[0].QtyToOrder.Equal(reorder.Rows[0].ParLevel.Sub(reorder.Rows[0].OnHand)) {
		test.Fatalf("unexpected reorder result: %+v", reorder)
	}
	if reorder.Rows[0].OnHand.String() != "8" {
		test.Fatalf("expected on hand 8, got %s", reorder.Rows[0].OnHand)
	}
}

func TestManualRowEditsKeepAliasedColumns(test *testing.T) {
	test.Parallel()
	store := New()
	ctx := context.Background()
	manual := inventory.Table{Name: inventory.DefaultTables().ManualReorder, Columns: []string{"upc", "name", "qty", "supplier"}}
	if err := store.Append(ctx, manual, []inventory.Row{{"upc": "EGG", "name": "Eggs", "qty": "5", "supplier": "Farm"}}); err != nil {
		test.Fatalf("seed: %v", err)
	}
	now := func() time.Time { return time.Date(2026, time.February, 6, 13, 0, 0, 0, time.UTC) }
	service, err := inventory.NewService(store, now)
	if err != nil {
		test.Fatalf("service: %v", err)
	}
	milk, err := inventory.NewUPC("MILK")
	if err != nil {
		test.Fatalf("upc: %v", err)
	}
	qty, err := inventory.NewQuantity("2")
	if err != nil {
		test.Fatalf("quantity: %v", err)
	}

	assertEggs := func(step string) {
		test.Helper()
		list, err := service.ShoppingList(ctx, true)
		if err != nil {
			test.Fatalf("%s: shopping list: %v", step, err)
		}
		for _, item := range list.Items {
			if item.UPC.String() != "EGG" {
				continue
			}
			if item.ProductName != "Eggs" || item.QtyToOrder.String() != "5" || item.PreferredVendor != "Farm" {
				test.Fatalf("%s: EGG lost its fields: %+v", step, item)
			}
			return
		}
		test.Fatalf("%s: EGG missing from %+v", step, list.Items)
	}

	assertEggs("before edit")
	if err := service.SetManualRow(ctx, inventory.ShoppingRow{UPC: milk, QtyToOrder: qty}); err != nil {
		test.Fatalf("set manual row: %v", err)
	}
	assertEggs("after set")
	removed, err := service.RemoveManualRow(ctx, milk)
	if err != nil || !removed {
		test.Fatalf("expected removal, got removed=%t err=%v", removed, err)
	}
	assertEggs("after remove")
}
