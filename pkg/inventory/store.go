package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Row is one record keyed by column name.
type Row map[string]string

// Value returns the first non-empty value among the given column names.
// Names are compared after normalization, so "Product Name" matches product_name.
func (row Row) Value(names ...string) string {
	for _, name := range names {
		if value, ok := row[name]; ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	for _, name := range names {
		wanted := NormalizeColumn(name)
		for key, value := range row {
			if NormalizeColumn(key) == wanted && strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}

// NormalizeColumn folds a header cell onto its logical column name.
func NormalizeColumn(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(lowered)
}

// Project lays the row out over columns, resolving each through Value. Missing cells are blank.
func (row Row) Project(columns []string) []string {
	cells := make([]string, len(columns))
	for index, column := range columns {
		cells[index] = row.Value(column)
	}
	return cells
}

// RowFromCells pairs positional cells with a header. Cells beyond the header are dropped
// and a short row is padded with blanks.
func RowFromCells(header []string, cells []string) Row {
	row := make(Row, len(header))
	for index, column := range header {
		if strings.TrimSpace(column) == "" {
			continue
		}
		value := ""
		if index < len(cells) {
			value = cells[index]
		}
		row[column] = value
	}
	return row
}

// IsBlank reports a row without any non-empty cell.
func (row Row) IsBlank() bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

// Table names a physical table and the logical column order written to it.
type Table struct {
	Name    string
	Columns []string
}

// Validate ensures the table can be addressed.
func (table Table) Validate() error {
	if strings.TrimSpace(table.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTable)
	}
	if len(table.Columns) == 0 {
		return fmt.Errorf("%w: %s has no columns", ErrInvalidTable, table.Name)
	}
	return nil
}

// HeaderFor returns the header to write rows under: the stored one when present, else the table columns.
func HeaderFor(stored []string, table Table) []string {
	if len(stored) > 0 {
		return stored
	}
	return append([]string(nil), table.Columns...)
}

// Records is the full content of a table in stored order.
type Records struct {
	Header []string
	Rows   []Row
}

// Require fails with ErrMissingColumn when a non-empty header lacks one of the columns.
// A table that was never written has no header and passes.
func (records Records) Require(table string, columns ...string) error {
	if len(records.Header) == 0 {
		return nil
	}
	present := make(map[string]struct{}, len(records.Header))
	for _, column := range records.Header {
		present[NormalizeColumn(column)] = struct{}{}
	}
	var missing []string
	for _, column := range columns {
		if _, ok := present[NormalizeColumn(column)]; !ok {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s lacks %s", ErrMissingColumn, table, strings.Join(missing, ", "))
	}
	return nil
}

// TabularStore is the persistence contract used by Service.
// Transient failures wrap ErrTransientStore or ErrRateLimited; everything else is fatal.
type TabularStore interface {
	ReadAll(ctx context.Context, table Table) (Records, error)
	Append(ctx context.Context, table Table, rows []Row) error
	Overwrite(ctx context.Context, table Table, rows []Row) error
}

// Locker serializes recompute runs that overwrite the same table.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// Notifier delivers a reorder notification.
type Notifier interface {
	SendReorder(ctx context.Context, message ReorderMessage) error
}

// ReorderMessage is the content handed to a Notifier.
type ReorderMessage struct {
	BusinessDate BusinessDate
	Recipients   []string
	Items        []ShoppingRow
	RequestID    string
}

// Tables carries the configured table names.
type Tables struct {
	Purchases     string
	Usage         string
	Adjustments   string
	Actions       string
	Catalog       string
	Recipes       string
	Sales         string
	EmailLog      string
	Reorder       string
	ManualReorder string
}

// DefaultTables returns the conventional table names.
func DefaultTables() Tables {
	return Tables{
		Purchases:     DefaultPurchasesTable,
		Usage:         DefaultUsageTable,
		Adjustments:   DefaultAdjustmentsTable,
		Actions:       DefaultActionsTable,
		Catalog:       DefaultCatalogTable,
		Recipes:       DefaultRecipesTable,
		Sales:         DefaultSalesTable,
		EmailLog:      DefaultEmailLogTable,
		Reorder:       DefaultReorderTable,
		ManualReorder: DefaultManualReorderTable,
	}
}

// WithDefaults fills blank names from DefaultTables.
func (tables Tables) WithDefaults() Tables {
	defaults := DefaultTables()
	fill := func(value *string, fallback string) {
		if strings.TrimSpace(*value) == "" {
			*value = fallback
		}
	}
	fill(&tables.Purchases, defaults.Purchases)
	fill(&tables.Usage, defaults.Usage)
	fill(&tables.Adjustments, defaults.Adjustments)
	fill(&tables.Actions, defaults.Actions)
	fill(&tables.Catalog, defaults.Catalog)
	fill(&tables.Recipes, defaults.Recipes)
	fill(&tables.Sales, defaults.Sales)
	fill(&tables.EmailLog, defaults.EmailLog)
	fill(&tables.Reorder, defaults.Reorder)
	fill(&tables.ManualReorder, defaults.ManualReorder)
	return tables
}

// PurchasesTable describes the Purchases ledger.
func (tables Tables) PurchasesTable() Table {
	return Table{Name: tables.Purchases, Columns: []string{ColumnTimestamp, ColumnUPC, ColumnQtyPurchased, ColumnBaseUnitsAdded, ColumnVendor, ColumnActor}}
}

// UsageTable describes the Inventory_Usage ledger.
func (tables Tables) UsageTable() Table {
	return Table{Name: tables.Usage, Columns: []string{ColumnDate, ColumnUPC, ColumnUsedQty}}
}

// AdjustmentsTable describes the Inventory_Adjustments ledger.
func (tables Tables) AdjustmentsTable() Table {
	return Table{Name: tables.Adjustments, Columns: []string{ColumnTimestamp, ColumnDate, ColumnUPC, ColumnBaseUnitsDelta, ColumnAdjustmentType, ColumnReason, ColumnActor}}
}

// ActionsTable describes the Shopping_Actions log.
func (tables Tables) ActionsTable() Table {
	return Table{Name: tables.Actions, Columns: []string{ColumnTimestamp, ColumnDate, ColumnUPC, ColumnAction, ColumnNote, ColumnActor}}
}

// CatalogTable describes the product master.
func (tables Tables) CatalogTable() Table {
	return Table{Name: tables.Catalog, Columns: []string{ColumnUPC, ColumnProductName, ColumnBaseUnit, ColumnReorderPoint, ColumnParLevel, ColumnDefaultLocation, ColumnPreferredVendor, ColumnActive}}
}

// RecipesTable describes the bill of materials.
func (tables Tables) RecipesTable() Table {
	return Table{Name: tables.Recipes, Columns: []string{ColumnMenuItem, ColumnIngredientUPC, ColumnQtyPerItem, ColumnActive}}
}

// SalesTable describes the Sales ledger.
func (tables Tables) SalesTable() Table {
	return Table{Name: tables.Sales, Columns: []string{ColumnDate, ColumnMenuItem, ColumnQtySold, ColumnSource}}
}

// EmailLogTable describes the notification audit trail.
func (tables Tables) EmailLogTable() Table {
	return Table{Name: tables.EmailLog, Columns: []string{ColumnTimestamp, ColumnBusinessDate, ColumnItems, ColumnRecipients, ColumnActor, ColumnRequestID, ColumnItemsHash}}
}

// ReorderTable describes the reorder snapshot.
func (tables Tables) ReorderTable() Table {
	return Table{Name: tables.Reorder, Columns: shoppingColumns(true)}
}

// ManualReorderTable describes the manager-entered shopping rows.
func (tables Tables) ManualReorderTable() Table {
	return Table{Name: tables.ManualReorder, Columns: shoppingColumns(false)}
}

func shoppingColumns(withTimestamp bool) []string {
	columns := []string{ColumnUPC, ColumnProductName, ColumnOnHand, ColumnBaseUnit, ColumnReorderPoint, ColumnParLevel, ColumnQtyToOrder, ColumnPreferredVendor, ColumnDefaultLocation, ColumnNote}
	if withTimestamp {
		return append([]string{ColumnTimestamp}, columns...)
	}
	return columns
}
