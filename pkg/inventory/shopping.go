package inventory

import (
	"context"
	"sort"
)

// ShoppingList is the merged reorder view for one business date.
type ShoppingList struct {
	Date        BusinessDate
	Items       []ShoppingRow
	Hidden      []string
	InvalidRows []string
}

// MergeShoppingList combines manual rows with the computed snapshot, the snapshot winning
// on a shared UPC, and fills blank fields from the catalog. The result is ordered by
// quantity to order, largest first.
func MergeShoppingList(snapshot []ShoppingRow, manual []ShoppingRow, catalog []CatalogEntry) []ShoppingRow {
	merged := make(map[string]ShoppingRow, len(snapshot)+len(manual))
	for _, row := range manual {
		merged[row.UPC.String()] = row
	}
	for _, row := range snapshot {
		merged[row.UPC.String()] = row
	}
	known := catalogIndex(catalog)
	rows := make([]ShoppingRow, 0, len(merged))
	for key, row := range merged {
		if entry, ok := known[key]; ok {
			row = enrichFromCatalog(row, entry)
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(left, right int) bool {
		if comparison := rows[left].QtyToOrder.Cmp(rows[right].QtyToOrder); comparison != 0 {
			return comparison > 0
		}
		return rows[left].UPC.String() < rows[right].UPC.String()
	})
	return rows
}

func enrichFromCatalog(row ShoppingRow, entry CatalogEntry) ShoppingRow {
	if row.ProductName == "" {
		row.ProductName = entry.ProductName
	}
	if row.BaseUnit == "" {
		row.BaseUnit = entry.BaseUnit
	}
	if row.ReorderPoint.IsZero() {
		row.ReorderPoint = entry.ReorderPoint
	}
	if row.ParLevel.IsZero() {
		row.ParLevel = entry.ParLevel
	}
	if row.PreferredVendor == "" {
		row.PreferredVendor = entry.PreferredVendor
	}
	if row.DefaultLocation == "" {
		row.DefaultLocation = entry.DefaultLocation
	}
	return row
}

// LatestActions replays the action log for one business date; the last appended event per UPC wins.
func LatestActions(date BusinessDate, events []ShoppingActionEvent) map[string]ShoppingAction {
	latest := make(map[string]ShoppingAction)
	for _, event := range events {
		if event.Date != date {
			continue
		}
		latest[event.UPC.String()] = event.Action
	}
	return latest
}

// HiddenUPCs returns the UPCs whose latest action for the date hides them, sorted.
func HiddenUPCs(date BusinessDate, events []ShoppingActionEvent) []string {
	var hidden []string
	for upc, action := range LatestActions(date, events) {
		if action.Hides() {
			hidden = append(hidden, upc)
		}
	}
	sort.Strings(hidden)
	return hidden
}

// FilterHidden drops rows whose UPC is in hidden, preserving order.
func FilterHidden(rows []ShoppingRow, hidden []string) []ShoppingRow {
	if len(hidden) == 0 {
		return rows
	}
	excluded := make(map[string]struct{}, len(hidden))
	for _, upc := range hidden {
		excluded[upc] = struct{}{}
	}
	visible := make([]ShoppingRow, 0, len(rows))
	for _, row := range rows {
		if _, ok := excluded[row.UPC.String()]; ok {
			continue
		}
		visible = append(visible, row)
	}
	return visible
}

// ShoppingList merges the snapshot and manual rows for today. Unless includeHidden is set,
// lines hidden by today's action log are removed.
func (service *Service) ShoppingList(ctx context.Context, includeHidden bool) (ShoppingList, error) {
	list, operationError := service.shoppingList(ctx, service.Today(), includeHidden)
	service.logOperation(ctx, OperationLog{
		Operation:    operationShoppingList,
		BusinessDate: list.Date,
		RowsWritten:  len(list.Items),
		Warnings:     len(list.InvalidRows),
		Error:        operationError,
	})
	return list, operationError
}

func (service *Service) shoppingList(ctx context.Context, today BusinessDate, includeHidden bool) (ShoppingList, error) {
	list := ShoppingList{Date: today}
	snapshot, snapshotIssues, err := service.readShoppingRows(ctx, service.tables.ReorderTable())
	if err != nil {
		return list, err
	}
	manual, manualIssues, err := service.readShoppingRows(ctx, service.tables.ManualReorderTable())
	if err != nil {
		return list, err
	}
	catalog, catalogIssues, err := service.readCatalog(ctx)
	if err != nil {
		return list, err
	}
	actions, actionIssues, err := service.readActions(ctx)
	if err != nil {
		return list, err
	}
	list.InvalidRows = append(append(append(snapshotIssues, manualIssues...), catalogIssues...), actionIssues...)
	list.Items = MergeShoppingList(snapshot, manual, catalog)
	list.Hidden = HiddenUPCs(today, actions)
	if !includeHidden {
		list.Items = FilterHidden(list.Items, list.Hidden)
	}
	return list, nil
}
