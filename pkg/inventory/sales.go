package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Modifier is one selected option on a point-of-sale line.
type Modifier struct {
	Group  string
	Option string
}

// SaleLine is a raw point-of-sale line before aggregation.
type SaleLine struct {
	Date      BusinessDate
	MenuItem  string
	Modifiers []Modifier
	Quantity  decimal.Decimal
	Source    string
}

// VirtualItemRule describes a menu item whose recipe depends on its modifiers,
// e.g. a build-your-own bowl with a required protein and an optional cheese swap.
type VirtualItemRule struct {
	MenuItem       string   `mapstructure:"menu_item"`
	RequiredGroup  string   `mapstructure:"required_group"`
	OptionalGroups []string `mapstructure:"optional_groups"`
}

// Validate ensures the rule names an item and its identifying group.
func (rule VirtualItemRule) Validate() error {
	if MenuKey(rule.MenuItem) == "" {
		return fmt.Errorf("%w: virtual item rule without menu item", ErrInvalidServiceConfig)
	}
	if MenuKey(rule.RequiredGroup) == "" {
		return fmt.Errorf("%w: virtual item %q has no required group", ErrInvalidServiceConfig, rule.MenuItem)
	}
	return nil
}

func (rule VirtualItemRule) matches(menuItem string) bool {
	return MenuKey(rule.MenuItem) == MenuKey(menuItem)
}

// CompositeMenuItem returns the canonical menu identity of a sale line.
// Lines not covered by a rule keep their own name.
func CompositeMenuItem(line SaleLine, rules []VirtualItemRule) string {
	name := strings.Join(strings.Fields(line.MenuItem), " ")
	for _, rule := range rules {
		if !rule.matches(line.MenuItem) {
			continue
		}
		parts := []string{strings.Join(strings.Fields(rule.MenuItem), " ")}
		required := selectedOption(line.Modifiers, rule.RequiredGroup)
		if required == "" {
			required = unspecifiedChoice
		}
		parts = append(parts, required)
		for _, group := range rule.OptionalGroups {
			if option := selectedOption(line.Modifiers, group); option != "" {
				parts = append(parts, option)
			}
		}
		return strings.Join(parts, compositeKeyDelimiter)
	}
	return name
}

func selectedOption(modifiers []Modifier, group string) string {
	wanted := MenuKey(group)
	for _, modifier := range modifiers {
		if MenuKey(modifier.Group) == wanted {
			return strings.Join(strings.Fields(modifier.Option), " ")
		}
	}
	return ""
}

// ParseModifiers reads "Group:Option;Group:Option" as exported by the point of sale.
func ParseModifiers(raw string) []Modifier {
	var modifiers []Modifier
	for _, part := range strings.Split(raw, ";") {
		group, option, found := strings.Cut(part, ":")
		if !found || strings.TrimSpace(group) == "" || strings.TrimSpace(option) == "" {
			continue
		}
		modifiers = append(modifiers, Modifier{Group: strings.TrimSpace(group), Option: strings.TrimSpace(option)})
	}
	return modifiers
}

// AggregateSales collapses lines to one row per business date and canonical menu item,
// summing quantities. Order follows first appearance.
func AggregateSales(lines []SaleLine, rules []VirtualItemRule) []SalesRow {
	type aggregateKey struct {
		date string
		menu string
	}
	index := make(map[aggregateKey]int)
	var rows []SalesRow
	for _, line := range lines {
		if line.Quantity.IsZero() {
			continue
		}
		menuItem := CompositeMenuItem(line, rules)
		key := aggregateKey{date: line.Date.String(), menu: MenuKey(menuItem)}
		if position, ok := index[key]; ok {
			rows[position].QtySold = rows[position].QtySold.Add(line.Quantity)
			continue
		}
		index[key] = len(rows)
		rows = append(rows, SalesRow{Date: line.Date, MenuItem: menuItem, QtySold: line.Quantity, Source: strings.TrimSpace(line.Source)})
	}
	return rows
}

// IngestResult reports a sales ingestion.
type IngestResult struct {
	LinesRead   int
	RowsWritten int
}

// IngestSales validates every line, collapses virtual items and appends the aggregated rows.
// One invalid line rejects the whole batch.
func (service *Service) IngestSales(ctx context.Context, lines []SaleLine) (IngestResult, error) {
	result := IngestResult{LinesRead: len(lines)}
	operationError := service.ingestSales(ctx, lines, &result)
	service.logOperation(ctx, OperationLog{
		Operation:   operationIngestSales,
		RowsWritten: result.RowsWritten,
		Error:       operationError,
	})
	return result, operationError
}

func (service *Service) ingestSales(ctx context.Context, lines []SaleLine, result *IngestResult) error {
	for position, line := range lines {
		if line.Date.IsZero() {
			return fmt.Errorf("%w: line %d has no date", ErrInvalidBusinessDate, position+1)
		}
		if MenuKey(line.MenuItem) == "" {
			return fmt.Errorf("%w: line %d has no menu item", ErrInvalidMenuItem, position+1)
		}
	}
	aggregated := AggregateSales(lines, service.virtualItems)
	if len(aggregated) == 0 {
		return nil
	}
	rows := make([]Row, 0, len(aggregated))
	for _, sale := range aggregated {
		rows = append(rows, Row{
			ColumnDate:     sale.Date.String(),
			ColumnMenuItem: sale.MenuItem,
			ColumnQtySold:  formatQuantity(sale.QtySold),
			ColumnSource:   sale.Source,
		})
	}
	if err := service.store.Append(ctx, service.tables.SalesTable(), rows); err != nil {
		return err
	}
	result.RowsWritten = len(rows)
	return nil
}
