package xlsxstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
	"github.com/xuri/excelize/v2"
)

const (
	firstColumn         = 1
	headerRow           = 1
	errorOperationStore = "store"
	errorSubjectFile    = "workbook"
	errorSubjectSheet   = "sheet"
	errorCodeOpen       = "open"
	errorCodeRead       = "read"
	errorCodeSave       = "save"
	errorCodeWrite      = "write"
)

// Store implements inventory.TabularStore on a local workbook, one worksheet per table.
// Every call opens and saves the file; the mutex serializes callers within the process.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store for the workbook at path. The file is created on first write.
func New(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: workbook path is required", inventory.ErrStoreConfig)
	}
	if !strings.EqualFold(filepath.Ext(trimmed), ".xlsx") {
		return nil, fmt.Errorf("%w: %s is not an .xlsx file", inventory.ErrStoreConfig, trimmed)
	}
	return &Store{path: trimmed}, nil
}

// ReadAll returns every row of a worksheet. A missing workbook or worksheet reads as empty.
func (store *Store) ReadAll(ctx context.Context, table inventory.Table) (inventory.Records, error) {
	if err := table.Validate(); err != nil {
		return inventory.Records{}, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return inventory.Records{}, err
	}
	workbook, err := store.open(false)
	if err != nil || workbook == nil {
		return inventory.Records{}, err
	}
	defer workbook.Close()
	return readSheet(workbook, table.Name)
}

// Append writes rows below the last used row, adding the header to an empty worksheet.
func (store *Store) Append(ctx context.Context, table inventory.Table, rows []inventory.Row) error {
	if err := table.Validate(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	workbook, err := store.open(true)
	if err != nil {
		return err
	}
	defer workbook.Close()
	if err := ensureSheet(workbook, table.Name); err != nil {
		return err
	}
	existing, err := readSheet(workbook, table.Name)
	if err != nil {
		return err
	}
	header := inventory.HeaderFor(existing.Header, table)
	next := headerRow + 1 + len(existing.Rows)
	if len(existing.Header) == 0 {
		if err := writeRow(workbook, table.Name, headerRow, header); err != nil {
			return err
		}
		next = headerRow + 1
	}
	for offset, row := range rows {
		if err := writeRow(workbook, table.Name, next+offset, row.Project(header)); err != nil {
			return err
		}
	}
	return store.save(workbook)
}

// Overwrite replaces the worksheet with the header and rows. The workbook is saved once,
// so readers see either the old sheet or the new one.
func (store *Store) Overwrite(ctx context.Context, table inventory.Table, rows []inventory.Row) error {
	if err := table.Validate(); err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	workbook, err := store.open(true)
	if err != nil {
		return err
	}
	defer workbook.Close()
	if index, err := workbook.GetSheetIndex(table.Name); err == nil && index >= 0 {
		if err := workbook.DeleteSheet(table.Name); err != nil {
			return wrapStoreError(errorSubjectSheet, errorCodeWrite, err)
		}
	}
	if err := ensureSheet(workbook, table.Name); err != nil {
		return err
	}
	header := inventory.HeaderFor(nil, table)
	if err := writeRow(workbook, table.Name, headerRow, header); err != nil {
		return err
	}
	for offset, row := range rows {
		if err := writeRow(workbook, table.Name, headerRow+1+offset, row.Project(header)); err != nil {
			return err
		}
	}
	return store.save(workbook)
}

// open loads the workbook. A missing file yields nil unless create is set.
func (store *Store) open(create bool) (*excelize.File, error) {
	workbook, err := excelize.OpenFile(store.path)
	if err == nil {
		return workbook, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, wrapStoreError(errorSubjectFile, errorCodeOpen, err)
	}
	if !create {
		return nil, nil
	}
	return excelize.NewFile(), nil
}

func (store *Store) save(workbook *excelize.File) error {
	if err := os.MkdirAll(filepath.Dir(store.path), 0o755); err != nil {
		return wrapStoreError(errorSubjectFile, errorCodeSave, err)
	}
	if err := workbook.SaveAs(store.path); err != nil {
		return wrapStoreError(errorSubjectFile, errorCodeSave, err)
	}
	return nil
}

func ensureSheet(workbook *excelize.File, name string) error {
	if index, err := workbook.GetSheetIndex(name); err == nil && index >= 0 {
		return nil
	}
	if _, err := workbook.NewSheet(name); err != nil {
		return wrapStoreError(errorSubjectSheet, errorCodeWrite, err)
	}
	return nil
}

func readSheet(workbook *excelize.File, name string) (inventory.Records, error) {
	index, err := workbook.GetSheetIndex(name)
	if err != nil || index < 0 {
		return inventory.Records{}, nil
	}
	cells, err := workbook.GetRows(name)
	if err != nil {
		return inventory.Records{}, wrapStoreError(errorSubjectSheet, errorCodeRead, err)
	}
	if len(cells) == 0 {
		return inventory.Records{}, nil
	}
	header := cells[0]
	records := inventory.Records{Header: header, Rows: make([]inventory.Row, 0, len(cells)-1)}
	for _, row := range cells[1:] {
		records.Rows = append(records.Rows, inventory.RowFromCells(header, row))
	}
	return records, nil
}

func writeRow(workbook *excelize.File, sheet string, rowNumber int, cells []string) error {
	start, err := excelize.CoordinatesToCellName(firstColumn, rowNumber)
	if err != nil {
		return wrapStoreError(errorSubjectSheet, errorCodeWrite, err)
	}
	values := make([]interface{}, len(cells))
	for index, cell := range cells {
		values[index] = cell
	}
	if err := workbook.SetSheetRow(sheet, start, &values); err != nil {
		return wrapStoreError(errorSubjectSheet, errorCodeWrite, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return inventory.WrapError(errorOperationStore, subject, code, err)
}

var _ inventory.TabularStore = (*Store)(nil)
