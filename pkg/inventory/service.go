package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service reconciles inventory ledgers over a TabularStore.
type Service struct {
	store        TabularStore
	nowFn        func() time.Time
	tables       Tables
	calendar     BusinessCalendar
	logger       OperationLogger
	locker       Locker
	notifier     Notifier
	virtualItems []VirtualItemRule
	requestIDFn  func() string
}

// NewService wires a Service.
func NewService(store TabularStore, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:       store,
		nowFn:       now,
		tables:      DefaultTables(),
		requestIDFn: uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	for _, rule := range service.virtualItems {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
	}
	return service, nil
}

// Today returns the current business date.
func (service *Service) Today() BusinessDate {
	return service.calendar.DateOf(service.nowFn())
}

// Calendar exposes the business calendar.
func (service *Service) Calendar() BusinessCalendar {
	return service.calendar
}

// Tables exposes the configured table names.
func (service *Service) Tables() Tables {
	return service.tables
}

func (service *Service) readTable(ctx context.Context, table Table, required ...string) (Records, error) {
	records, err := service.store.ReadAll(ctx, table)
	if err != nil {
		return Records{}, err
	}
	if err := records.Require(table.Name, required...); err != nil {
		return Records{}, err
	}
	return records, nil
}

func (service *Service) readCatalog(ctx context.Context) ([]CatalogEntry, []string, error) {
	table := service.tables.CatalogTable()
	records, err := service.readTable(ctx, table, ColumnUPC)
	if err != nil {
		return nil, nil, err
	}
	entries, issues := parseRows(table.Name, records, catalogParser())
	return entries, issues, nil
}

func (service *Service) readPurchases(ctx context.Context) ([]PurchaseEvent, []string, error) {
	table := service.tables.PurchasesTable()
	records, err := service.readTable(ctx, table, ColumnUPC)
	if err != nil {
		return nil, nil, err
	}
	events, issues := parseRows(table.Name, records, purchaseParser(service.calendar.Location()))
	return events, issues, nil
}

func (service *Service) readUsage(ctx context.Context) (Records, []UsageEvent, []string, error) {
	table := service.tables.UsageTable()
	records, err := service.readTable(ctx, table, ColumnDate, ColumnUPC, ColumnUsedQty)
	if err != nil {
		return Records{}, nil, nil, err
	}
	events, issues := parseRows(table.Name, records, usageParser())
	return records, events, issues, nil
}

func (service *Service) readAdjustments(ctx context.Context) ([]AdjustmentEvent, []string, error) {
	table := service.tables.AdjustmentsTable()
	records, err := service.readTable(ctx, table, ColumnUPC, ColumnBaseUnitsDelta)
	if err != nil {
		return nil, nil, err
	}
	events, issues := parseRows(table.Name, records, adjustmentParser(service.calendar))
	return events, issues, nil
}

func (service *Service) readRecipes(ctx context.Context) ([]RecipeRow, []string, error) {
	table := service.tables.RecipesTable()
	records, err := service.readTable(ctx, table, ColumnMenuItem, ColumnIngredientUPC, ColumnQtyPerItem)
	if err != nil {
		return nil, nil, err
	}
	recipes, issues := parseRows(table.Name, records, recipeParser())
	return recipes, issues, nil
}

func (service *Service) readSales(ctx context.Context) ([]SalesRow, []string, error) {
	table := service.tables.SalesTable()
	records, err := service.readTable(ctx, table, ColumnDate, ColumnMenuItem, ColumnQtySold)
	if err != nil {
		return nil, nil, err
	}
	sales, issues := parseRows(table.Name, records, salesParser())
	return sales, issues, nil
}

func (service *Service) readActions(ctx context.Context) ([]ShoppingActionEvent, []string, error) {
	table := service.tables.ActionsTable()
	records, err := service.readTable(ctx, table, ColumnDate, ColumnUPC, ColumnAction)
	if err != nil {
		return nil, nil, err
	}
	events, issues := parseRows(table.Name, records, actionParser())
	return events, issues, nil
}

func (service *Service) readShoppingRows(ctx context.Context, table Table) ([]ShoppingRow, []string, error) {
	records, err := service.readTable(ctx, table, ColumnUPC)
	if err != nil {
		return nil, nil, err
	}
	rows, issues := parseRows(table.Name, records, shoppingRowParser(service.calendar.Location()))
	return rows, issues, nil
}

func (service *Service) readEmailLog(ctx context.Context) ([]EmailLogRow, []string, error) {
	table := service.tables.EmailLogTable()
	records, err := service.readTable(ctx, table, ColumnTimestamp, ColumnBusinessDate)
	if err != nil {
		return nil, nil, err
	}
	rows, issues := parseRows(table.Name, records, emailLogParser(service.calendar))
	return rows, issues, nil
}

func (service *Service) withLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if service.locker == nil {
		return fn(ctx)
	}
	release, err := service.locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	runErr := fn(ctx)
	if releaseErr := release(context.WithoutCancel(ctx)); releaseErr != nil && runErr == nil {
		return releaseErr
	}
	return runErr
}

func lockKey(prefix string, table string) string {
	return prefix + lockKeyDelimiter + table
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
