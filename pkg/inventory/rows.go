package inventory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Alias columns tried when reading loosely maintained tables.
var (
	aliasProductName     = []string{ColumnProductName, "name", "item_name", "product"}
	aliasBaseUnit        = []string{ColumnBaseUnit, "unit", "uom"}
	aliasReorderPoint    = []string{ColumnReorderPoint, "reorder_at", "min_level"}
	aliasParLevel        = []string{ColumnParLevel, "par", "max_level"}
	aliasPreferredVendor = []string{ColumnPreferredVendor, "vendor", "supplier"}
	aliasDefaultLocation = []string{ColumnDefaultLocation, "location", "storage_location"}
	aliasMenuItem        = []string{ColumnMenuItem, ColumnMenuItemFallback}
	aliasIngredientUPC   = []string{ColumnIngredientUPC, ColumnUPC}
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	businessDateLayout,
}

// MenuKey folds a menu item name for matching sales against recipes.
func MenuKey(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}

func parseQuantity(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidQuantity, raw)
	}
	return value, nil
}

func parseFlag(raw string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return fallback
	case "true", "yes", "y", "1", "x", "active":
		return true
	case "false", "no", "n", "0", "inactive":
		return false
	default:
		return fallback
	}
}

func parseCount(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return value
}

func parseTimestamp(raw string, location *time.Location) time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, trimmed, location); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func formatTimestamp(instant time.Time) string {
	if instant.IsZero() {
		return ""
	}
	return instant.UTC().Format(time.RFC3339)
}

func formatQuantity(value decimal.Decimal) string {
	return value.String()
}

// rowParser turns a stored row into an entity; skip reports a blank row.
type rowParser[T any] func(row Row) (entity T, skip bool, err error)

// rowWarning is a parse issue the parser recovered from; the entity is still used.
type rowWarning struct {
	err error
}

func (warning rowWarning) Error() string { return warning.err.Error() }

func (warning rowWarning) Unwrap() error { return warning.err }

func parseRows[T any](table string, records Records, parse rowParser[T]) ([]T, []string) {
	entities := make([]T, 0, len(records.Rows))
	var issues []string
	for index, row := range records.Rows {
		entity, skip, err := parse(row)
		if skip {
			continue
		}
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s row %d: %v", table, index+2, err))
			var warning rowWarning
			if !errors.As(err, &warning) {
				continue
			}
		}
		entities = append(entities, entity)
	}
	return entities, issues
}

func parseUPCCell(row Row, names ...string) (UPC, bool, error) {
	raw := row.Value(names...)
	if raw == "" {
		return UPC{}, true, nil
	}
	upc, err := NewUPC(raw)
	return upc, false, err
}

func catalogParser() rowParser[CatalogEntry] {
	return func(row Row) (CatalogEntry, bool, error) {
		upc, skip, err := parseUPCCell(row, ColumnUPC)
		if skip || err != nil {
			return CatalogEntry{}, skip, err
		}
		reorderPoint, err := parseQuantity(row.Value(aliasReorderPoint...))
		if err != nil {
			return CatalogEntry{}, false, err
		}
		parLevel, err := parseQuantity(row.Value(aliasParLevel...))
		if err != nil {
			return CatalogEntry{}, false, err
		}
		return CatalogEntry{
			UPC:             upc,
			ProductName:     row.Value(aliasProductName...),
			BaseUnit:        row.Value(aliasBaseUnit...),
			ReorderPoint:    reorderPoint,
			ParLevel:        parLevel,
			DefaultLocation: row.Value(aliasDefaultLocation...),
			PreferredVendor: row.Value(aliasPreferredVendor...),
			Active:          parseFlag(row.Value(ColumnActive), true),
		}, false, nil
	}
}

func purchaseParser(location *time.Location) rowParser[PurchaseEvent] {
	return func(row Row) (PurchaseEvent, bool, error) {
		upc, skip, err := parseUPCCell(row, ColumnUPC)
		if skip || err != nil {
			return PurchaseEvent{}, skip, err
		}
		qtyPurchased, err := parseQuantity(row.Value(ColumnQtyPurchased))
		if err != nil {
			return PurchaseEvent{}, false, err
		}
		baseUnitsAdded, err := parseQuantity(row.Value(ColumnBaseUnitsAdded))
		if err != nil {
			return PurchaseEvent{}, false, err
		}
		return PurchaseEvent{
			Timestamp:      parseTimestamp(row.Value(ColumnTimestamp), location),
			UPC:            upc,
			QtyPurchased:   qtyPurchased,
			BaseUnitsAdded: baseUnitsAdded,
			Vendor:         row.Value(ColumnVendor),
			Actor:          row.Value(ColumnActor),
		}, false, nil
	}
}

func usageParser() rowParser[UsageEvent] {
	return func(row Row) (UsageEvent, bool, error) {
		upc, skip, err := parseUPCCell(row, ColumnUPC, ColumnIngredientUPC)
		if skip || err != nil {
			return UsageEvent{}, skip, err
		}
		date, err := ParseBusinessDate(row.Value(ColumnDate))
		if err != nil {
			return UsageEvent{}, false, err
		}
		used, err := parseQuantity(row.Value(ColumnUsedQty))
		if err != nil {
			return UsageEvent{}, false, err
		}
		return UsageEvent{Date: date, UPC: upc, UsedQty: used}, false, nil
	}
}

func adjustmentParser(calendar BusinessCalendar) rowParser[AdjustmentEvent] {
	return func(row Row) (AdjustmentEvent, bool, error) {
		upc, skip, err := parseUPCCell(row, ColumnUPC)
		if skip || err != nil {
			return AdjustmentEvent{}, skip, err
		}
		delta, err := parseQuantity(row.Value(ColumnBaseUnitsDelta))
		if err != nil {
			return AdjustmentEvent{}, false, err
		}
		timestamp := parseTimestamp(row.Value(ColumnTimestamp), calendar.Location())
		var date BusinessDate
		if rawDate := row.Value(ColumnDate); rawDate != "" {
			date, err = ParseBusinessDate(rawDate)
			if err != nil {
				return AdjustmentEvent{}, false, err
			}
		} else if !timestamp.IsZero() {
			date = calendar.DateOf(timestamp)
		}
		return AdjustmentEvent{
			Timestamp:      timestamp,
			Date:           date,
			UPC:            upc,
			BaseUnitsDelta: delta,
			AdjustmentType: row.Value(ColumnAdjustmentType),
			Reason:         row.Value(ColumnReason),
			Actor:          row.Value(ColumnActor),
		}, false, nil
	}
}

func recipeParser() rowParser[RecipeRow] {
	return func(row Row) (RecipeRow, bool, error) {
		menuItem := row.Value(aliasMenuItem...)
		ingredient := row.Value(aliasIngredientUPC...)
		if menuItem == "" && ingredient == "" {
			return RecipeRow{}, true, nil
		}
		if menuItem == "" {
			return RecipeRow{}, false, fmt.Errorf("%w: empty menu item", ErrInvalidMenuItem)
		}
		upc, err := NewUPC(ingredient)
		if err != nil {
			return RecipeRow{}, false, err
		}
		qtyPerItem, err := parseQuantity(row.Value(ColumnQtyPerItem))
		if err != nil {
			return RecipeRow{}, false, err
		}
		return RecipeRow{
			MenuItem:      menuItem,
			IngredientUPC: upc,
			QtyPerItem:    qtyPerItem,
			Active:        parseFlag(row.Value(ColumnActive), true),
		}, false, nil
	}
}

func salesParser() rowParser[SalesRow] {
	return func(row Row) (SalesRow, bool, error) {
		menuItem := row.Value(aliasMenuItem...)
		rawDate := row.Value(ColumnDate)
		if menuItem == "" && rawDate == "" {
			return SalesRow{}, true, nil
		}
		date, err := ParseBusinessDate(rawDate)
		if err != nil {
			return SalesRow{}, false, err
		}
		qtySold, err := parseQuantity(row.Value(ColumnQtySold))
		if err != nil {
			return SalesRow{}, false, err
		}
		return SalesRow{Date: date, MenuItem: menuItem, QtySold: qtySold, Source: row.Value(ColumnSource)}, false, nil
	}
}

func actionParser() rowParser[ShoppingActionEvent] {
	return func(row Row) (ShoppingActionEvent, bool, error) {
		upc, skip, err := parseUPCCell(row, ColumnUPC)
		if skip || err != nil {
			return ShoppingActionEvent{}, skip, err
		}
		date, err := ParseBusinessDate(row.Value(ColumnDate))
		if err != nil {
			return ShoppingActionEvent{}, false, err
		}
		action, err := ParseShoppingAction(row.Value(ColumnAction))
		if err != nil {
			return ShoppingActionEvent{}, false, err
		}
		return ShoppingActionEvent{Date: date, UPC: upc, Action: action, Note: row.Value(ColumnNote), Actor: row.Value(ColumnActor)}, false, nil
	}
}

func shoppingRowParser(location *time.Location) rowParser[ShoppingRow] {
	return func(row Row) (ShoppingRow, bool, error) {
		upc, skip, err := parseUPCCell(row, ColumnUPC)
		if skip || err != nil {
			return ShoppingRow{}, skip, err
		}
		parsed := ShoppingRow{
			Timestamp:       parseTimestamp(row.Value(ColumnTimestamp), location),
			UPC:             upc,
			ProductName:     row.Value(aliasProductName...),
			BaseUnit:        row.Value(aliasBaseUnit...),
			PreferredVendor: row.Value(aliasPreferredVendor...),
			DefaultLocation: row.Value(aliasDefaultLocation...),
			Note:            row.Value(ColumnNote),
		}
		fields := []struct {
			target *decimal.Decimal
			names  []string
		}{
			{&parsed.OnHand, []string{ColumnOnHand, "on_hand"}},
			{&parsed.ReorderPoint, aliasReorderPoint},
			{&parsed.ParLevel, aliasParLevel},
			{&parsed.QtyToOrder, []string{ColumnQtyToOrder, "qty_to_order", "qty"}},
		}
		for _, field := range fields {
			value, err := parseQuantity(row.Value(field.names...))
			if err != nil {
				return ShoppingRow{}, false, err
			}
			*field.target = value
		}
		return parsed, false, nil
	}
}

// emailLogParser keeps a send with an unreadable business date when its timestamp
// parses; the date is then taken from the timestamp.
func emailLogParser(calendar BusinessCalendar) rowParser[EmailLogRow] {
	return func(row Row) (EmailLogRow, bool, error) {
		rawTimestamp := row.Value(ColumnTimestamp)
		rawDate := row.Value(ColumnBusinessDate)
		if rawTimestamp == "" && rawDate == "" {
			return EmailLogRow{}, true, nil
		}
		parsed := EmailLogRow{
			Timestamp:  parseTimestamp(rawTimestamp, calendar.Location()),
			Items:      parseCount(row.Value(ColumnItems)),
			Recipients: parseCount(row.Value(ColumnRecipients)),
			Actor:      row.Value(ColumnActor),
			RequestID:  row.Value(ColumnRequestID),
			ItemsHash:  row.Value(ColumnItemsHash),
		}
		var dateErr error
		if rawDate != "" {
			parsed.BusinessDate, dateErr = ParseBusinessDate(rawDate)
		}
		if parsed.BusinessDate.IsZero() && !parsed.Timestamp.IsZero() {
			parsed.BusinessDate = calendar.DateOf(parsed.Timestamp)
		}
		if dateErr == nil {
			return parsed, false, nil
		}
		if parsed.Timestamp.IsZero() {
			return EmailLogRow{}, false, dateErr
		}
		return parsed, false, rowWarning{err: fmt.Errorf("%w; dated from timestamp", dateErr)}
	}
}

func usageRow(event UsageEvent) Row {
	return Row{
		ColumnDate:    event.Date.String(),
		ColumnUPC:     event.UPC.String(),
		ColumnUsedQty: formatQuantity(event.UsedQty),
	}
}

// canonicalShoppingRow rewrites a stored shopping row under the logical column names
// so values kept under alias headers survive a whole-table overwrite.
// Rows that do not parse are returned as stored.
func canonicalShoppingRow(row Row, location *time.Location) Row {
	parsed, skip, err := shoppingRowParser(location)(row)
	if skip || err != nil {
		return row
	}
	return shoppingRowValues(parsed, false)
}

// canonicalUsageRow does the same for usage ledger rows.
func canonicalUsageRow(row Row) Row {
	parsed, skip, err := usageParser()(row)
	if skip || err != nil {
		return row
	}
	return usageRow(parsed)
}

func shoppingRowValues(row ShoppingRow, withTimestamp bool) Row {
	values := Row{
		ColumnUPC:             row.UPC.String(),
		ColumnProductName:     row.ProductName,
		ColumnOnHand:          formatQuantity(row.OnHand),
		ColumnBaseUnit:        row.BaseUnit,
		ColumnReorderPoint:    formatQuantity(row.ReorderPoint),
		ColumnParLevel:        formatQuantity(row.ParLevel),
		ColumnQtyToOrder:      formatQuantity(row.QtyToOrder),
		ColumnPreferredVendor: row.PreferredVendor,
		ColumnDefaultLocation: row.DefaultLocation,
		ColumnNote:            row.Note,
	}
	if withTimestamp {
		values[ColumnTimestamp] = formatTimestamp(row.Timestamp)
	}
	return values
}
