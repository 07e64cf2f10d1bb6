package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2026, time.February, 6, 15, 0, 0, 0, time.UTC)

type stubStore struct {
	mu             sync.Mutex
	tables         map[string]Records
	readErrors     map[string]error
	appendErr      error
	overwriteErr   error
	appendCalls    int
	overwriteCalls int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{tables: make(map[string]Records), readErrors: make(map[string]error)}
}

func (store *stubStore) seed(table Table, rows ...Row) {
	store.mu.Lock()
	defer store.mu.Unlock()
	records := store.tables[table.Name]
	if len(records.Header) == 0 {
		records.Header = append([]string(nil), table.Columns...)
	}
	for _, row := range rows {
		records.Rows = append(records.Rows, copyRow(row))
	}
	store.tables[table.Name] = records
}

func (store *stubStore) rows(table Table) []Row {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.tables[table.Name].Rows
}

func (store *stubStore) ReadAll(ctx context.Context, table Table) (Records, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if err := store.readErrors[table.Name]; err != nil {
		return Records{}, err
	}
	records := store.tables[table.Name]
	copied := Records{Header: append([]string(nil), records.Header...)}
	for _, row := range records.Rows {
		copied.Rows = append(copied.Rows, copyRow(row))
	}
	return copied, nil
}

func (store *stubStore) Append(ctx context.Context, table Table, rows []Row) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.appendCalls++
	if store.appendErr != nil {
		return store.appendErr
	}
	records := store.tables[table.Name]
	if len(records.Header) == 0 {
		records.Header = append([]string(nil), table.Columns...)
	}
	for _, row := range rows {
		records.Rows = append(records.Rows, copyRow(row))
	}
	store.tables[table.Name] = records
	return nil
}

func (store *stubStore) Overwrite(ctx context.Context, table Table, rows []Row) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.overwriteCalls++
	if store.overwriteErr != nil {
		return store.overwriteErr
	}
	records := Records{Header: append([]string(nil), table.Columns...)}
	for _, row := range rows {
		records.Rows = append(records.Rows, copyRow(row))
	}
	store.tables[table.Name] = records
	return nil
}

func copyRow(row Row) Row {
	copied := make(Row, len(row))
	for key, value := range row {
		copied[key] = value
	}
	return copied
}

type recordingNotifier struct {
	messages []ReorderMessage
	err      error
}

func (notifier *recordingNotifier) SendReorder(_ context.Context, message ReorderMessage) error {
	if notifier.err != nil {
		return notifier.err
	}
	notifier.messages = append(notifier.messages, message)
	return nil
}

func mustNewService(test *testing.T, store TabularStore, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() time.Time { return fixedNow }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUPC(test *testing.T, raw string) UPC {
	test.Helper()
	value, err := NewUPC(raw)
	if err != nil {
		test.Fatalf("upc: %v", err)
	}
	return value
}

func mustDate(test *testing.T, raw string) BusinessDate {
	test.Helper()
	value, err := ParseBusinessDate(raw)
	if err != nil {
		test.Fatalf("business date: %v", err)
	}
	return value
}

func mustDecimal(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		test.Fatalf("decimal: %v", err)
	}
	return value
}

func assertDecimal(test *testing.T, label string, want string, got decimal.Decimal) {
	test.Helper()
	if !got.Equal(mustDecimal(test, want)) {
		test.Fatalf("%s: expected %s, got %s", label, want, got.String())
	}
}
