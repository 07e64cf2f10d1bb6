package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// UsageExplosion is the ingredient usage derived from one business date of sales.
type UsageExplosion struct {
	Date           BusinessDate
	Rows           []UsageEvent
	MissingRecipes []string
	MissingCatalog []string
}

// UsageResult reports a usage recompute.
type UsageResult struct {
	UsageExplosion
	Mode         WriteMode
	RowsWritten  int
	RowsReplaced int
	InvalidRows  []string
}

type soldItem struct {
	name     string
	quantity decimal.Decimal
}

// ExplodeUsage expands sold menu quantities through active recipes.
// Sold items without an active recipe are reported, never guessed; ingredients
// missing from the catalog are reported but still produce usage.
func ExplodeUsage(date BusinessDate, sales []SalesRow, recipes []RecipeRow, catalog []CatalogEntry) UsageExplosion {
	sold := make(map[string]*soldItem)
	for _, sale := range sales {
		if sale.Date != date || !sale.QtySold.IsPositive() {
			continue
		}
		key := MenuKey(sale.MenuItem)
		if key == "" {
			continue
		}
		item, ok := sold[key]
		if !ok {
			item = &soldItem{name: sale.MenuItem}
			sold[key] = item
		}
		item.quantity = item.quantity.Add(sale.QtySold)
	}

	bom := make(map[string][]RecipeRow)
	for _, recipe := range recipes {
		if !recipe.Active {
			continue
		}
		key := MenuKey(recipe.MenuItem)
		bom[key] = append(bom[key], recipe)
	}

	known := catalogIndex(catalog)
	soldKeys := make([]string, 0, len(sold))
	for key := range sold {
		soldKeys = append(soldKeys, key)
	}
	sort.Strings(soldKeys)

	explosion := UsageExplosion{Date: date}
	missingCatalog := make(map[string]struct{})
	for _, key := range soldKeys {
		item := sold[key]
		ingredients := bom[key]
		if len(ingredients) == 0 {
			explosion.MissingRecipes = append(explosion.MissingRecipes, item.name)
			continue
		}
		for _, ingredient := range ingredients {
			if _, ok := known[ingredient.IngredientUPC.String()]; !ok {
				missingCatalog[ingredient.IngredientUPC.String()] = struct{}{}
			}
			explosion.Rows = append(explosion.Rows, UsageEvent{
				Date:    date,
				UPC:     ingredient.IngredientUPC,
				UsedQty: item.quantity.Mul(ingredient.QtyPerItem),
			})
		}
	}
	for upc := range missingCatalog {
		explosion.MissingCatalog = append(explosion.MissingCatalog, upc)
	}
	sort.Strings(explosion.MissingCatalog)
	return explosion
}

// RecomputeUsage derives usage for one business date and writes it.
// Replace mode drops every stored usage row for the date before writing, so re-runs are idempotent.
func (service *Service) RecomputeUsage(ctx context.Context, date BusinessDate, mode WriteMode) (UsageResult, error) {
	result := UsageResult{Mode: mode}
	operationError := service.recomputeUsage(ctx, date, mode, &result)
	service.logOperation(ctx, OperationLog{
		Operation:    operationRecomputeUsage,
		BusinessDate: date,
		Mode:         mode,
		RowsWritten:  result.RowsWritten,
		Warnings:     len(result.MissingRecipes) + len(result.MissingCatalog) + len(result.InvalidRows),
		Error:        operationError,
	})
	return result, operationError
}

func (service *Service) recomputeUsage(ctx context.Context, date BusinessDate, mode WriteMode, result *UsageResult) error {
	if date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidBusinessDate)
	}
	if mode != WriteModeAppend && mode != WriteModeReplace {
		return fmt.Errorf("%w: %q", ErrInvalidWriteMode, mode)
	}
	table := service.tables.UsageTable()
	return service.withLock(ctx, lockKey(lockPrefixUsage, table.Name), func(ctx context.Context) error {
		sales, salesIssues, err := service.readSales(ctx)
		if err != nil {
			return err
		}
		recipes, recipeIssues, err := service.readRecipes(ctx)
		if err != nil {
			return err
		}
		catalog, catalogIssues, err := service.readCatalog(ctx)
		if err != nil {
			return err
		}
		result.InvalidRows = append(append(salesIssues, recipeIssues...), catalogIssues...)
		result.UsageExplosion = ExplodeUsage(date, sales, recipes, catalog)

		fresh := make([]Row, 0, len(result.Rows))
		for _, event := range result.Rows {
			fresh = append(fresh, usageRow(event))
		}
		if mode == WriteModeAppend {
			if len(fresh) == 0 {
				return nil
			}
			if err := service.store.Append(ctx, table, fresh); err != nil {
				return err
			}
			result.RowsWritten = len(fresh)
			return nil
		}

		existing, err := service.readTable(ctx, table, ColumnDate, ColumnUPC, ColumnUsedQty)
		if err != nil {
			return err
		}
		kept := make([]Row, 0, len(existing.Rows)+len(fresh))
		for _, row := range existing.Rows {
			if rowDate, err := ParseBusinessDate(row.Value(ColumnDate)); err == nil && rowDate == date {
				result.RowsReplaced++
				continue
			}
			kept = append(kept, canonicalUsageRow(row))
		}
		if result.RowsReplaced == 0 {
			if len(fresh) == 0 {
				return nil
			}
			if err := service.store.Append(ctx, table, fresh); err != nil {
				return err
			}
			result.RowsWritten = len(fresh)
			return nil
		}
		if err := service.store.Overwrite(ctx, table, append(kept, fresh...)); err != nil {
			return err
		}
		result.RowsWritten = len(fresh)
		return nil
	})
}
