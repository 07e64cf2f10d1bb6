package sheetsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const testSpreadsheetID = "sheet-1"

// fakeSheets serves the subset of the Sheets v4 REST surface the store uses.
type fakeSheets struct {
	mu       sync.Mutex
	ids      map[string]int64
	values   map[string][][]string
	nextID   int64
	failWith int
}

func newFakeSheets() *fakeSheets {
	return &fakeSheets{ids: map[string]int64{}, values: map[string][][]string{}}
}

func (fake *fakeSheets) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.failWith != 0 {
		writer.WriteHeader(fake.failWith)
		_, _ = fmt.Fprintf(writer, `{"error":{"code":%d,"message":"injected"}}`, fake.failWith)
		return
	}
	path := strings.TrimPrefix(request.URL.Path, "/v4/spreadsheets/"+testSpreadsheetID)
	switch {
	case path == "" && request.Method == http.MethodGet:
		spreadsheet := sheets.Spreadsheet{}
		for title, id := range fake.ids {
			spreadsheet.Sheets = append(spreadsheet.Sheets, &sheets.Sheet{Properties: &sheets.SheetProperties{Title: title, SheetId: id}})
		}
		writeJSON(writer, spreadsheet)
	case path == ":batchUpdate":
		var batch sheets.BatchUpdateSpreadsheetRequest
		if err := json.NewDecoder(request.Body).Decode(&batch); err != nil {
			http.Error(writer, err.Error(), http.StatusBadRequest)
			return
		}
		response := sheets.BatchUpdateSpreadsheetResponse{}
		for _, update := range batch.Requests {
			reply := &sheets.Response{}
			switch {
			case update.AddSheet != nil:
				fake.nextID++
				fake.ids[update.AddSheet.Properties.Title] = fake.nextID
				reply.AddSheet = &sheets.AddSheetResponse{Properties: &sheets.SheetProperties{Title: update.AddSheet.Properties.Title, SheetId: fake.nextID}}
			case update.UpdateCells != nil && update.UpdateCells.Range != nil:
				fake.values[fake.titleOf(update.UpdateCells.Range.SheetId)] = nil
			case update.UpdateCells != nil:
				title := fake.titleOf(update.UpdateCells.Start.SheetId)
				for _, row := range update.UpdateCells.Rows {
					cells := make([]string, 0, len(row.Values))
					for _, cell := range row.Values {
						cells = append(cells, *cell.UserEnteredValue.StringValue)
					}
					fake.values[title] = append(fake.values[title], cells)
				}
			}
			response.Replies = append(response.Replies, reply)
		}
		writeJSON(writer, response)
	case strings.HasPrefix(path, "/values/"):
		rangeName := strings.TrimPrefix(path, "/values/")
		appending := strings.HasSuffix(rangeName, ":append")
		title := strings.Trim(strings.TrimSuffix(rangeName, ":append"), "'")
		if !appending {
			rows := make([][]interface{}, 0, len(fake.values[title]))
			for _, cells := range fake.values[title] {
				row := make([]interface{}, 0, len(cells))
				for _, cell := range cells {
					row = append(row, cell)
				}
				rows = append(rows, row)
			}
			writeJSON(writer, sheets.ValueRange{Values: rows})
			return
		}
		var body sheets.ValueRange
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			http.Error(writer, err.Error(), http.StatusBadRequest)
			return
		}
		for _, row := range body.Values {
			fake.values[title] = append(fake.values[title], toStrings(row))
		}
		writeJSON(writer, sheets.AppendValuesResponse{})
	default:
		http.NotFound(writer, request)
	}
}

func (fake *fakeSheets) titleOf(id int64) string {
	for title, candidate := range fake.ids {
		if candidate == id {
			return title
		}
	}
	return ""
}

func writeJSON(writer http.ResponseWriter, payload interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(writer).Encode(payload)
}

func newTestStore(test *testing.T, fake *fakeSheets) *Store {
	test.Helper()
	return newTestStoreWithConfig(test, fake, Config{SpreadsheetID: testSpreadsheetID})
}

func newTestStoreWithConfig(test *testing.T, fake *fakeSheets, config Config) *Store {
	test.Helper()
	server := httptest.NewServer(fake)
	test.Cleanup(server.Close)
	store, err := New(context.Background(), config,
		option.WithEndpoint(server.URL+"/"),
		option.WithoutAuthentication(),
	)
	if err != nil {
		test.Fatalf("new store: %v", err)
	}
	return store
}

func TestStoreAppendOverwriteRoundTrip(test *testing.T) {
	test.Parallel()
	fake := newFakeSheets()
	store := newTestStore(test, fake)
	ctx := context.Background()
	table := inventory.DefaultTables().ActionsTable()

	empty, err := store.ReadAll(ctx, table)
	if err != nil {
		test.Fatalf("read missing tab: %v", err)
	}
	if len(empty.Rows) != 0 || len(empty.Header) != 0 {
		test.Fatalf("missing tab must read empty, got %+v", empty)
	}

	rows := []inventory.Row{{inventory.ColumnDate: "2026-02-06", inventory.ColumnUPC: "MILK", inventory.ColumnAction: "dismissed"}}
	if err := store.Append(ctx, table, rows); err != nil {
		test.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, table, []inventory.Row{{inventory.ColumnDate: "2026-02-06", inventory.ColumnUPC: "MILK", inventory.ColumnAction: "undo"}}); err != nil {
		test.Fatalf("second append: %v", err)
	}
	records, err := store.ReadAll(ctx, table)
	if err != nil {
		test.Fatalf("read: %v", err)
	}
	if len(records.Header) != len(table.Columns) || len(records.Rows) != 2 || records.Rows[1][inventory.ColumnAction] != "undo" {
		test.Fatalf("unexpected records: %+v", records)
	}

	if err := store.Overwrite(ctx, table, []inventory.Row{{inventory.ColumnUPC: "OAT", inventory.ColumnAction: "snoozed"}}); err != nil {
		test.Fatalf("overwrite: %v", err)
	}
	records, err = store.ReadAll(ctx, table)
	if err != nil {
		test.Fatalf("read after overwrite: %v", err)
	}
	if len(records.Rows) != 1 || records.Rows[0][inventory.ColumnUPC] != "OAT" {
		test.Fatalf("unexpected rows after overwrite: %+v", records.Rows)
	}
}

func TestClassify(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name string
		err  error
		want error
	}{
		{name: "rate limited", err: &googleapi.Error{Code: http.StatusTooManyRequests}, want: inventory.ErrRateLimited},
		{name: "server error", err: &googleapi.Error{Code: http.StatusBadGateway}, want: inventory.ErrTransientStore},
		{name: "forbidden", err: &googleapi.Error{Code: http.StatusForbidden}, want: inventory.ErrStoreConfig},
	}
	for _, testCase := range testCases {
		if got := classify(testCase.err); !errors.Is(got, testCase.want) {
			test.Fatalf("%s: expected %v, got %v", testCase.name, testCase.want, got)
		}
	}
	plain := &googleapi.Error{Code: http.StatusBadRequest}
	if inventory.IsTransient(classify(plain)) {
		test.Fatalf("bad request must not be transient")
	}
}

func TestStoreSurfacesRateLimit(test *testing.T) {
	test.Parallel()
	fake := newFakeSheets()
	fake.failWith = http.StatusTooManyRequests
	store := newTestStore(test, fake)
	_, err := store.ReadAll(context.Background(), inventory.DefaultTables().CatalogTable())
	if !errors.Is(err, inventory.ErrRateLimited) {
		test.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestNewRequiresSpreadsheetID(test *testing.T) {
	test.Parallel()
	if _, err := New(context.Background(), Config{}); !errors.Is(err, inventory.ErrStoreConfig) {
		test.Fatalf("expected ErrStoreConfig, got %v", err)
	}
}

func TestStoreRequiringTabsRejectsMissingTab(test *testing.T) {
	test.Parallel()
	fake := newFakeSheets()
	store := newTestStoreWithConfig(test, fake, Config{SpreadsheetID: testSpreadsheetID, RequireTabs: true})
	ctx := context.Background()
	table := inventory.DefaultTables().CatalogTable()

	_, err := store.ReadAll(ctx, table)
	if !errors.Is(err, inventory.ErrUnknownTable) {
		test.Fatalf("expected ErrUnknownTable, got %v", err)
	}
	if inventory.IsTransient(err) {
		test.Fatalf("unknown table must be fatal")
	}
	if err := store.Append(ctx, table, []inventory.Row{{inventory.ColumnUPC: "MILK"}}); err != nil {
		test.Fatalf("append creates the tab: %v", err)
	}
	records, err := store.ReadAll(ctx, table)
	if err != nil || len(records.Rows) != 1 {
		test.Fatalf("expected one row once the tab exists, got %+v err=%v", records, err)
	}
}
