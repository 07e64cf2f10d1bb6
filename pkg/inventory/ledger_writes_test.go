package inventory

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestRecordPurchase(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	err := service.RecordPurchase(context.Background(), PurchaseEvent{
		UPC:            mustUPC(test, "MILK"),
		QtyPurchased:   mustDecimal(test, "2"),
		BaseUnitsAdded: mustDecimal(test, "8"),
		Vendor:         " Dairy Co ",
	})
	if err != nil {
		test.Fatalf("record purchase: %v", err)
	}
	rows := store.rows(DefaultTables().PurchasesTable())
	if len(rows) != 1 {
		test.Fatalf("expected one purchase row, got %v", rows)
	}
	if rows[0][ColumnTimestamp] != "2026-02-06T15:00:00Z" || rows[0][ColumnBaseUnitsAdded] != "8" || rows[0][ColumnVendor] != "Dairy Co" {
		test.Fatalf("unexpected purchase row: %v", rows[0])
	}
	reading, err := service.OnHand(context.Background(), mustUPC(test, "MILK"), BusinessDate{})
	if err != nil {
		test.Fatalf("on hand: %v", err)
	}
	assertDecimal(test, "on hand", "8", reading.OnHand)
}

func TestRecordPurchaseValidation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	testCases := []struct {
		name  string
		event PurchaseEvent
		want  error
	}{
		{name: "missing upc", event: PurchaseEvent{QtyPurchased: mustDecimal(test, "1")}, want: ErrInvalidUPC},
		{name: "zero quantity", event: PurchaseEvent{UPC: mustUPC(test, "MILK")}, want: ErrInvalidQuantity},
		{name: "negative quantity", event: PurchaseEvent{UPC: mustUPC(test, "MILK"), QtyPurchased: mustDecimal(test, "-1"), BaseUnitsAdded: mustDecimal(test, "4")}, want: ErrInvalidQuantity},
	}
	for _, testCase := range testCases {
		if err := service.RecordPurchase(context.Background(), testCase.event); !errors.Is(err, testCase.want) {
			test.Fatalf("%s: expected %v, got %v", testCase.name, testCase.want, err)
		}
	}
	if store.appendCalls != 0 {
		test.Fatalf("invalid purchases must not write")
	}
}

func TestRecordAdjustmentDatesFromCalendar(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	calendar, err := NewBusinessCalendar("America/Los_Angeles")
	if err != nil {
		test.Fatalf("calendar: %v", err)
	}
	late := time.Date(2026, time.February, 7, 3, 0, 0, 0, time.UTC)
	service, err := NewService(store, func() time.Time { return late }, WithCalendar(calendar))
	if err != nil {
		test.Fatalf("service: %v", err)
	}
	err = service.RecordAdjustment(context.Background(), AdjustmentEvent{
		UPC:            mustUPC(test, "MILK"),
		BaseUnitsDelta: mustDecimal(test, "-1.5"),
		AdjustmentType: "waste",
		Reason:         "spilled",
	})
	if err != nil {
		test.Fatalf("record adjustment: %v", err)
	}
	rows := store.rows(DefaultTables().AdjustmentsTable())
	if len(rows) != 1 || rows[0][ColumnDate] != "2026-02-06" || rows[0][ColumnBaseUnitsDelta] != "-1.5" {
		test.Fatalf("unexpected adjustment row: %v", rows)
	}
	if err := service.RecordAdjustment(context.Background(), AdjustmentEvent{UPC: mustUPC(test, "MILK")}); !errors.Is(err, ErrInvalidQuantity) {
		test.Fatalf("expected zero delta rejection, got %v", err)
	}
}

func TestManualRows(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.seed(DefaultTables().ManualReorderTable(), Row{ColumnUPC: "NAPKINS", ColumnQtyToOrder: "1"})
	service := mustNewService(test, store)
	ctx := context.Background()

	if err := service.SetManualRow(ctx, ShoppingRow{UPC: mustUPC(test, "napkins"), QtyToOrder: mustDecimal(test, "3"), Note: "party"}); err != nil {
		test.Fatalf("set manual row: %v", err)
	}
	if err := service.SetManualRow(ctx, ShoppingRow{UPC: mustUPC(test, "STRAWS"), QtyToOrder: mustDecimal(test, "2")}); err != nil {
		test.Fatalf("set manual row: %v", err)
	}
	rows := store.rows(DefaultTables().ManualReorderTable())
	if len(rows) != 2 || rows[0][ColumnQtyToOrder] != "3" || rows[0][ColumnNote] != "party" || rows[1][ColumnUPC] != "STRAWS" {
		test.Fatalf("unexpected manual rows: %v", rows)
	}
	if err := service.SetManualRow(ctx, ShoppingRow{UPC: mustUPC(test, "STRAWS"), QtyToOrder: mustDecimal(test, "-1")}); !errors.Is(err, ErrInvalidQuantity) {
		test.Fatalf("expected negative quantity rejection, got %v", err)
	}

	removed, err := service.RemoveManualRow(ctx, mustUPC(test, "NAPKINS"))
	if err != nil || !removed {
		test.Fatalf("expected removal, got removed=%t err=%v", removed, err)
	}
	removed, err = service.RemoveManualRow(ctx, mustUPC(test, "NAPKINS"))
	if err != nil || removed {
		test.Fatalf("expected no-op removal, got removed=%t err=%v", removed, err)
	}
	if rows := store.rows(DefaultTables().ManualReorderTable()); len(rows) != 1 {
		test.Fatalf("expected one manual row left, got %v", rows)
	}
}
