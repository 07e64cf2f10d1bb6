package inventory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// OnHand is a reconciled stock reading for one product.
type OnHand struct {
	UPC       UPC
	Purchased decimal.Decimal
	Used      decimal.Decimal
	Adjusted  decimal.Decimal
	OnHand    decimal.Decimal
	BaseUnit  string
}

// IsNegative reports stock below zero, usually missing starting inventory.
func (reading OnHand) IsNegative() bool {
	return reading.OnHand.IsNegative()
}

// stockTotals pre-aggregates ledger sums per UPC so batch callers read each ledger once.
type stockTotals struct {
	purchased map[string]decimal.Decimal
	used      map[string]decimal.Decimal
	adjusted  map[string]decimal.Decimal
}

// aggregateStock sums the ledgers. Purchases are lifetime; usage and adjustments
// are restricted to onDate when it is set.
func aggregateStock(purchases []PurchaseEvent, usage []UsageEvent, adjustments []AdjustmentEvent, onDate BusinessDate) stockTotals {
	totals := stockTotals{
		purchased: make(map[string]decimal.Decimal),
		used:      make(map[string]decimal.Decimal),
		adjusted:  make(map[string]decimal.Decimal),
	}
	for _, event := range purchases {
		key := event.UPC.String()
		totals.purchased[key] = totals.purchased[key].Add(event.Quantity())
	}
	for _, event := range usage {
		if !onDate.IsZero() && event.Date != onDate {
			continue
		}
		key := event.UPC.String()
		totals.used[key] = totals.used[key].Add(event.UsedQty)
	}
	for _, event := range adjustments {
		if !onDate.IsZero() && event.Date != onDate {
			continue
		}
		key := event.UPC.String()
		totals.adjusted[key] = totals.adjusted[key].Add(event.BaseUnitsDelta)
	}
	return totals
}

func (totals stockTotals) reading(upc UPC, baseUnit string) OnHand {
	key := upc.String()
	purchased := totals.purchased[key]
	used := totals.used[key]
	adjusted := totals.adjusted[key]
	return OnHand{
		UPC:       upc,
		Purchased: purchased,
		Used:      used,
		Adjusted:  adjusted,
		OnHand:    purchased.Sub(used).Add(adjusted),
		BaseUnit:  resolveBaseUnit(baseUnit),
	}
}

func resolveBaseUnit(raw string) string {
	if raw == "" {
		return defaultBaseUnit
	}
	return raw
}

// catalogIndex keys the catalog by UPC. The first row for a UPC wins, matching the reorder engine.
func catalogIndex(entries []CatalogEntry) map[string]CatalogEntry {
	index := make(map[string]CatalogEntry, len(entries))
	for _, entry := range entries {
		if _, duplicate := index[entry.UPC.String()]; duplicate {
			continue
		}
		index[entry.UPC.String()] = entry
	}
	return index
}

// ComputeOnHand reduces the ledgers to a single product reading.
// An unknown UPC yields zeros rather than an error.
func ComputeOnHand(upc UPC, onDate BusinessDate, catalog []CatalogEntry, purchases []PurchaseEvent, usage []UsageEvent, adjustments []AdjustmentEvent) OnHand {
	totals := aggregateStock(purchases, usage, adjustments, onDate)
	entry := catalogIndex(catalog)[upc.String()]
	return totals.reading(upc, entry.BaseUnit)
}

type ledgers struct {
	catalog     []CatalogEntry
	purchases   []PurchaseEvent
	usage       []UsageEvent
	adjustments []AdjustmentEvent
	issues      []string
}

func (service *Service) readLedgers(ctx context.Context) (ledgers, error) {
	var loaded ledgers
	catalog, catalogIssues, err := service.readCatalog(ctx)
	if err != nil {
		return ledgers{}, err
	}
	purchases, purchaseIssues, err := service.readPurchases(ctx)
	if err != nil {
		return ledgers{}, err
	}
	_, usage, usageIssues, err := service.readUsage(ctx)
	if err != nil {
		return ledgers{}, err
	}
	adjustments, adjustmentIssues, err := service.readAdjustments(ctx)
	if err != nil {
		return ledgers{}, err
	}
	loaded.catalog = catalog
	loaded.purchases = purchases
	loaded.usage = usage
	loaded.adjustments = adjustments
	loaded.issues = append(append(append(catalogIssues, purchaseIssues...), usageIssues...), adjustmentIssues...)
	return loaded, nil
}

// OnHand reads the ledgers and reconciles one product. A zero onDate means lifetime.
func (service *Service) OnHand(ctx context.Context, upc UPC, onDate BusinessDate) (OnHand, error) {
	var reading OnHand
	loaded, operationError := service.readLedgers(ctx)
	if operationError == nil {
		reading = ComputeOnHand(upc, onDate, loaded.catalog, loaded.purchases, loaded.usage, loaded.adjustments)
	}
	service.logOperation(ctx, OperationLog{
		Operation:    operationOnHand,
		BusinessDate: onDate,
		UPC:          upc,
		Warnings:     len(loaded.issues),
		Error:        operationError,
	})
	return reading, operationError
}

// OnHandReport reconciles every catalog product over its lifetime, ordered by UPC.
func (service *Service) OnHandReport(ctx context.Context) ([]OnHand, error) {
	var readings []OnHand
	loaded, operationError := service.readLedgers(ctx)
	if operationError == nil {
		totals := aggregateStock(loaded.purchases, loaded.usage, loaded.adjustments, BusinessDate{})
		readings = make([]OnHand, 0, len(loaded.catalog))
		seen := make(map[string]struct{}, len(loaded.catalog))
		for _, entry := range loaded.catalog {
			if _, duplicate := seen[entry.UPC.String()]; duplicate {
				continue
			}
			seen[entry.UPC.String()] = struct{}{}
			readings = append(readings, totals.reading(entry.UPC, entry.BaseUnit))
		}
		sort.SliceStable(readings, func(left, right int) bool {
			return readings[left].UPC.String() < readings[right].UPC.String()
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation:   operationOnHandReport,
		RowsWritten: len(readings),
		Warnings:    len(loaded.issues),
		Error:       operationError,
	})
	return readings, operationError
}
