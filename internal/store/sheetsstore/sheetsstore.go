package sheetsstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	valueInputRaw           = "RAW"
	insertDataRows          = "INSERT_ROWS"
	fieldsSheetProperties   = "sheets.properties(sheetId,title)"
	fieldsUserEnteredValue  = "userEnteredValue"
	forceSendSheetID        = "SheetId"
	errorOperationStore     = "store"
	errorSubjectSpreadsheet = "spreadsheet"
	errorSubjectTab         = "tab"
	errorSubjectValues      = "values"
	errorCodeAppend         = "append"
	errorCodeCreate         = "create"
	errorCodeList           = "list"
	errorCodeOverwrite      = "overwrite"
	errorCodeRead           = "read"
)

// Config selects the spreadsheet that holds one tab per table.
// RequireTabs makes reading a missing tab fail with inventory.ErrUnknownTable
// instead of returning an empty table.
type Config struct {
	SpreadsheetID   string
	CredentialsFile string
	RequireTabs     bool
}

// Store implements inventory.TabularStore on a Google Sheets spreadsheet.
// The first row of every tab is its header.
type Store struct {
	service       *sheets.Service
	spreadsheetID string
	requireTabs   bool

	mu   sync.Mutex
	tabs map[string]int64
}

// New connects to the Sheets API. Extra client options are applied after the credentials file.
func New(ctx context.Context, config Config, options ...option.ClientOption) (*Store, error) {
	spreadsheetID := strings.TrimSpace(config.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, fmt.Errorf("%w: spreadsheet id is required", inventory.ErrStoreConfig)
	}
	clientOptions := make([]option.ClientOption, 0, len(options)+1)
	if credentials := strings.TrimSpace(config.CredentialsFile); credentials != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credentials))
	}
	clientOptions = append(clientOptions, options...)
	service, err := sheets.NewService(ctx, clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", inventory.ErrStoreConfig, err)
	}
	return &Store{service: service, spreadsheetID: spreadsheetID, requireTabs: config.RequireTabs}, nil
}

// ReadAll returns every row of a tab. A missing tab reads as an empty table
// unless the store requires tabs.
func (store *Store) ReadAll(ctx context.Context, table inventory.Table) (inventory.Records, error) {
	if err := table.Validate(); err != nil {
		return inventory.Records{}, err
	}
	_, exists, err := store.lookupTab(ctx, table.Name)
	if err != nil {
		return inventory.Records{}, err
	}
	if !exists {
		if store.requireTabs {
			return inventory.Records{}, wrapStoreError(errorSubjectTab, errorCodeRead, fmt.Errorf("%w: %s", inventory.ErrUnknownTable, table.Name))
		}
		return inventory.Records{}, nil
	}
	return store.readValues(ctx, table.Name)
}

// Append adds rows below the last used row, writing the header first on an empty tab.
func (store *Store) Append(ctx context.Context, table inventory.Table, rows []inventory.Row) error {
	if err := table.Validate(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := store.ensureTab(ctx, table.Name); err != nil {
		return err
	}
	existing, err := store.readValues(ctx, table.Name)
	if err != nil {
		return err
	}
	header := inventory.HeaderFor(existing.Header, table)
	values := make([][]interface{}, 0, len(rows)+1)
	if len(existing.Header) == 0 {
		values = append(values, toInterfaces(header))
	}
	for _, row := range rows {
		values = append(values, toInterfaces(row.Project(header)))
	}
	_, err = store.service.Spreadsheets.Values.
		Append(store.spreadsheetID, quoteRange(table.Name), &sheets.ValueRange{Values: values}).
		ValueInputOption(valueInputRaw).
		InsertDataOption(insertDataRows).
		Context(ctx).
		Do()
	if err != nil {
		return wrapStoreError(errorSubjectValues, errorCodeAppend, classify(err))
	}
	return nil
}

// Overwrite clears the tab and writes the header and rows in one batch update,
// which the API applies atomically.
func (store *Store) Overwrite(ctx context.Context, table inventory.Table, rows []inventory.Row) error {
	if err := table.Validate(); err != nil {
		return err
	}
	sheetID, err := store.ensureTab(ctx, table.Name)
	if err != nil {
		return err
	}
	header := inventory.HeaderFor(nil, table)
	data := make([]*sheets.RowData, 0, len(rows)+1)
	data = append(data, rowData(header))
	for _, row := range rows {
		data = append(data, rowData(row.Project(header)))
	}
	request := &sheets.BatchUpdateSpreadsheetRequest{Requests: []*sheets.Request{
		{UpdateCells: &sheets.UpdateCellsRequest{
			Range:  &sheets.GridRange{SheetId: sheetID, ForceSendFields: []string{forceSendSheetID}},
			Fields: fieldsUserEnteredValue,
		}},
		{UpdateCells: &sheets.UpdateCellsRequest{
			Start:  &sheets.GridCoordinate{SheetId: sheetID, ForceSendFields: []string{forceSendSheetID}},
			Rows:   data,
			Fields: fieldsUserEnteredValue,
		}},
	}}
	if _, err := store.service.Spreadsheets.BatchUpdate(store.spreadsheetID, request).Context(ctx).Do(); err != nil {
		return wrapStoreError(errorSubjectValues, errorCodeOverwrite, classify(err))
	}
	return nil
}

func (store *Store) readValues(ctx context.Context, name string) (inventory.Records, error) {
	response, err := store.service.Spreadsheets.Values.Get(store.spreadsheetID, quoteRange(name)).Context(ctx).Do()
	if err != nil {
		return inventory.Records{}, wrapStoreError(errorSubjectValues, errorCodeRead, classify(err))
	}
	if len(response.Values) == 0 {
		return inventory.Records{}, nil
	}
	header := toStrings(response.Values[0])
	records := inventory.Records{Header: header, Rows: make([]inventory.Row, 0, len(response.Values)-1)}
	for _, cells := range response.Values[1:] {
		records.Rows = append(records.Rows, inventory.RowFromCells(header, toStrings(cells)))
	}
	return records, nil
}

func (store *Store) lookupTab(ctx context.Context, name string) (int64, bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if sheetID, ok := store.tabs[name]; ok {
		return sheetID, true, nil
	}
	if err := store.refreshTabsLocked(ctx); err != nil {
		return 0, false, err
	}
	sheetID, ok := store.tabs[name]
	return sheetID, ok, nil
}

func (store *Store) ensureTab(ctx context.Context, name string) (int64, error) {
	sheetID, exists, err := store.lookupTab(ctx, name)
	if err != nil || exists {
		return sheetID, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if sheetID, ok := store.tabs[name]; ok {
		return sheetID, nil
	}
	request := &sheets.BatchUpdateSpreadsheetRequest{Requests: []*sheets.Request{
		{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: name}}},
	}}
	response, err := store.service.Spreadsheets.BatchUpdate(store.spreadsheetID, request).Context(ctx).Do()
	if err != nil {
		return 0, wrapStoreError(errorSubjectTab, errorCodeCreate, classify(err))
	}
	if len(response.Replies) == 0 || response.Replies[0].AddSheet == nil || response.Replies[0].AddSheet.Properties == nil {
		if err := store.refreshTabsLocked(ctx); err != nil {
			return 0, err
		}
		return store.tabs[name], nil
	}
	sheetID = response.Replies[0].AddSheet.Properties.SheetId
	store.tabs[name] = sheetID
	return sheetID, nil
}

func (store *Store) refreshTabsLocked(ctx context.Context) error {
	spreadsheet, err := store.service.Spreadsheets.Get(store.spreadsheetID).Fields(fieldsSheetProperties).Context(ctx).Do()
	if err != nil {
		return wrapStoreError(errorSubjectSpreadsheet, errorCodeList, classify(err))
	}
	tabs := make(map[string]int64, len(spreadsheet.Sheets))
	for _, sheet := range spreadsheet.Sheets {
		if sheet == nil || sheet.Properties == nil {
			continue
		}
		tabs[sheet.Properties.Title] = sheet.Properties.SheetId
	}
	store.tabs = tabs
	return nil
}

func quoteRange(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func rowData(cells []string) *sheets.RowData {
	values := make([]*sheets.CellData, 0, len(cells))
	for _, cell := range cells {
		value := cell
		values = append(values, &sheets.CellData{UserEnteredValue: &sheets.ExtendedValue{StringValue: &value}})
	}
	return &sheets.RowData{Values: values}
}

func toInterfaces(cells []string) []interface{} {
	values := make([]interface{}, len(cells))
	for index, cell := range cells {
		values[index] = cell
	}
	return values
}

func toStrings(values []interface{}) []string {
	cells := make([]string, len(values))
	for index, value := range values {
		if value == nil {
			continue
		}
		cells[index] = fmt.Sprint(value)
	}
	return cells
}

func wrapStoreError(subject string, code string, err error) error {
	return inventory.WrapError(errorOperationStore, subject, code, err)
}

// classify maps API status codes onto the store taxonomy: 429 is rate limiting,
// 5xx is transient, auth and lookup failures are configuration errors.
func classify(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", inventory.ErrRateLimited, err)
	case apiErr.Code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %v", inventory.ErrTransientStore, err)
	case apiErr.Code == http.StatusUnauthorized, apiErr.Code == http.StatusForbidden, apiErr.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %v", inventory.ErrStoreConfig, err)
	default:
		return err
	}
}

var _ inventory.TabularStore = (*Store)(nil)
