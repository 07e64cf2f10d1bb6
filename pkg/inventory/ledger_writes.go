package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RecordPurchase appends a purchase. One of the two quantities must be positive.
func (service *Service) RecordPurchase(ctx context.Context, event PurchaseEvent) error {
	operationError := service.recordPurchase(ctx, &event)
	service.logOperation(ctx, OperationLog{
		Operation: operationRecordPurchase,
		UPC:       event.UPC,
		Actor:     event.Actor,
		Error:     operationError,
	})
	return operationError
}

func (service *Service) recordPurchase(ctx context.Context, event *PurchaseEvent) error {
	if event.UPC.IsZero() {
		return fmt.Errorf("%w: upc is required", ErrInvalidUPC)
	}
	if event.QtyPurchased.IsNegative() || event.BaseUnitsAdded.IsNegative() || !event.Quantity().IsPositive() {
		return fmt.Errorf("%w: purchase quantity must be greater than zero", ErrInvalidQuantity)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = service.nowFn()
	}
	return service.store.Append(ctx, service.tables.PurchasesTable(), []Row{{
		ColumnTimestamp:      formatTimestamp(event.Timestamp),
		ColumnUPC:            event.UPC.String(),
		ColumnQtyPurchased:   formatQuantity(event.QtyPurchased),
		ColumnBaseUnitsAdded: formatQuantity(event.BaseUnitsAdded),
		ColumnVendor:         strings.TrimSpace(event.Vendor),
		ColumnActor:          strings.TrimSpace(event.Actor),
	}})
}

// RecordAdjustment appends a signed correction dated today unless the event carries a date.
func (service *Service) RecordAdjustment(ctx context.Context, event AdjustmentEvent) error {
	operationError := service.recordAdjustment(ctx, &event)
	service.logOperation(ctx, OperationLog{
		Operation:    operationRecordAdjustment,
		BusinessDate: event.Date,
		UPC:          event.UPC,
		Reason:       event.Reason,
		Actor:        event.Actor,
		Error:        operationError,
	})
	return operationError
}

func (service *Service) recordAdjustment(ctx context.Context, event *AdjustmentEvent) error {
	if event.UPC.IsZero() {
		return fmt.Errorf("%w: upc is required", ErrInvalidUPC)
	}
	if event.BaseUnitsDelta.IsZero() {
		return fmt.Errorf("%w: adjustment delta must be non-zero", ErrInvalidQuantity)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = service.nowFn()
	}
	if event.Date.IsZero() {
		event.Date = service.calendar.DateOf(event.Timestamp)
	}
	return service.store.Append(ctx, service.tables.AdjustmentsTable(), []Row{{
		ColumnTimestamp:      formatTimestamp(event.Timestamp),
		ColumnDate:           event.Date.String(),
		ColumnUPC:            event.UPC.String(),
		ColumnBaseUnitsDelta: formatQuantity(event.BaseUnitsDelta),
		ColumnAdjustmentType: strings.TrimSpace(event.AdjustmentType),
		ColumnReason:         strings.TrimSpace(event.Reason),
		ColumnActor:          strings.TrimSpace(event.Actor),
	}})
}

// SetManualRow inserts or replaces the manager-entered shopping row for a UPC.
func (service *Service) SetManualRow(ctx context.Context, row ShoppingRow) error {
	operationError := service.setManualRow(ctx, row)
	service.logOperation(ctx, OperationLog{
		Operation: operationSetManualRow,
		UPC:       row.UPC,
		Error:     operationError,
	})
	return operationError
}

func (service *Service) setManualRow(ctx context.Context, row ShoppingRow) error {
	if row.UPC.IsZero() {
		return fmt.Errorf("%w: upc is required", ErrInvalidUPC)
	}
	if row.QtyToOrder.IsNegative() {
		return fmt.Errorf("%w: quantity to order must not be negative", ErrInvalidQuantity)
	}
	table := service.tables.ManualReorderTable()
	records, err := service.readTable(ctx, table, ColumnUPC)
	if err != nil {
		return err
	}
	rows := make([]Row, 0, len(records.Rows)+1)
	replaced := false
	for _, existing := range records.Rows {
		if matchesUPC(existing, row.UPC) {
			if !replaced {
				rows = append(rows, shoppingRowValues(row, false))
				replaced = true
			}
			continue
		}
		rows = append(rows, canonicalShoppingRow(existing, service.calendar.Location()))
	}
	if !replaced {
		rows = append(rows, shoppingRowValues(row, false))
	}
	return service.store.Overwrite(ctx, table, rows)
}

// RemoveManualRow deletes the manual row for a UPC and reports whether one existed.
func (service *Service) RemoveManualRow(ctx context.Context, upc UPC) (bool, error) {
	removed, operationError := service.removeManualRow(ctx, upc)
	service.logOperation(ctx, OperationLog{
		Operation: operationRemoveManualRow,
		UPC:       upc,
		Error:     operationError,
	})
	return removed, operationError
}

func (service *Service) removeManualRow(ctx context.Context, upc UPC) (bool, error) {
	if upc.IsZero() {
		return false, fmt.Errorf("%w: upc is required", ErrInvalidUPC)
	}
	table := service.tables.ManualReorderTable()
	records, err := service.readTable(ctx, table, ColumnUPC)
	if err != nil {
		return false, err
	}
	kept := make([]Row, 0, len(records.Rows))
	for _, existing := range records.Rows {
		if matchesUPC(existing, upc) {
			continue
		}
		kept = append(kept, canonicalShoppingRow(existing, service.calendar.Location()))
	}
	if len(kept) == len(records.Rows) {
		return false, nil
	}
	return true, service.store.Overwrite(ctx, table, kept)
}

func matchesUPC(row Row, upc UPC) bool {
	stored, err := NewUPC(row.Value(ColumnUPC))
	return err == nil && stored == upc
}

// NewQuantity parses a decimal quantity at an input boundary.
func NewQuantity(raw string) (decimal.Decimal, error) {
	return parseQuantity(raw)
}
