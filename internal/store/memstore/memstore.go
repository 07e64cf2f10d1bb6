package memstore

import (
	"context"
	"sync"

	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
)

// Store is an in-memory inventory.TabularStore. Reads return copies, so callers
// never alias stored rows.
type Store struct {
	mu     sync.RWMutex
	tables map[string]inventory.Records
}

// New returns an empty Store.
func New() *Store {
	return &Store{tables: make(map[string]inventory.Records)}
}

func (store *Store) ReadAll(ctx context.Context, table inventory.Table) (inventory.Records, error) {
	if err := table.Validate(); err != nil {
		return inventory.Records{}, err
	}
	if err := ctx.Err(); err != nil {
		return inventory.Records{}, err
	}
	store.mu.RLock()
	defer store.mu.RUnlock()
	records := store.tables[table.Name]
	copied := inventory.Records{Header: append([]string(nil), records.Header...), Rows: make([]inventory.Row, 0, len(records.Rows))}
	for _, row := range records.Rows {
		copied.Rows = append(copied.Rows, inventory.RowFromCells(records.Header, row.Project(records.Header)))
	}
	return copied, nil
}

func (store *Store) Append(ctx context.Context, table inventory.Table, rows []inventory.Row) error {
	if err := table.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	records := store.tables[table.Name]
	records.Header = inventory.HeaderFor(records.Header, table)
	for _, row := range rows {
		records.Rows = append(records.Rows, inventory.RowFromCells(records.Header, row.Project(records.Header)))
	}
	store.tables[table.Name] = records
	return nil
}

func (store *Store) Overwrite(ctx context.Context, table inventory.Table, rows []inventory.Row) error {
	if err := table.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	header := inventory.HeaderFor(nil, table)
	replaced := inventory.Records{Header: header, Rows: make([]inventory.Row, 0, len(rows))}
	for _, row := range rows {
		replaced.Rows = append(replaced.Rows, inventory.RowFromCells(header, row.Project(header)))
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	store.tables[table.Name] = replaced
	return nil
}

var _ inventory.TabularStore = (*Store)(nil)
