package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/cafestock/internal/store/pgerr"
	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
	gosqlite "github.com/glebarez/go-sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	sqliteBusyCode          = 5
	sqliteLockedCode        = 6
	errorOperationStore     = "store"
	errorSubjectHeader      = "header"
	errorSubjectRows        = "rows"
	errorSubjectSchema      = "schema"
	errorCodeAppend         = "append"
	errorCodeDecode         = "decode"
	errorCodeEncode         = "encode"
	errorCodeMigrate        = "migrate"
	errorCodeOverwrite      = "overwrite"
	errorCodeRead           = "read"
	rowBatchSize            = 500
	sqlSelectMaxRowPosition = "coalesce(max(position), -1) as position"
	sqlWhereTableName       = "table_name = ?"
	sqlOrderByRowPosition   = "position ASC, row_id ASC"
)

// Store implements inventory.TabularStore using GORM.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate creates the header and row tables when missing.
func (store *Store) Migrate(ctx context.Context) error {
	if err := store.db.WithContext(ctx).AutoMigrate(&TableHeader{}, &TableRow{}); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeMigrate, classify(err))
	}
	return nil
}

// ReadAll returns the header and rows of a table in append order.
func (store *Store) ReadAll(ctx context.Context, table inventory.Table) (inventory.Records, error) {
	if err := table.Validate(); err != nil {
		return inventory.Records{}, err
	}
	header, err := readHeader(store.db.WithContext(ctx), table.Name)
	if err != nil {
		return inventory.Records{}, err
	}
	var models []TableRow
	err = store.db.WithContext(ctx).
		Where(sqlWhereTableName, table.Name).
		Order(sqlOrderByRowPosition).
		Find(&models).Error
	if err != nil {
		return inventory.Records{}, wrapStoreError(errorSubjectRows, errorCodeRead, classify(err))
	}
	records := inventory.Records{Header: header, Rows: make([]inventory.Row, 0, len(models))}
	for _, model := range models {
		var cells []string
		if err := json.Unmarshal(model.Cells, &cells); err != nil {
			return inventory.Records{}, wrapStoreError(errorSubjectRows, errorCodeDecode, err)
		}
		records.Rows = append(records.Rows, inventory.RowFromCells(header, cells))
	}
	return records, nil
}

// Append writes rows after the existing ones, creating the header from the table columns if needed.
func (store *Store) Append(ctx context.Context, table inventory.Table, rows []inventory.Row) error {
	if err := table.Validate(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		header, err := readHeader(transaction, table.Name)
		if err != nil {
			return err
		}
		if len(header) == 0 {
			header = inventory.HeaderFor(nil, table)
			if err := writeHeader(transaction, table.Name, header, store.now()); err != nil {
				return err
			}
		}
		var next struct{ Position int64 }
		err = transaction.Model(&TableRow{}).
			Select(sqlSelectMaxRowPosition).
			Where(sqlWhereTableName, table.Name).
			Scan(&next).Error
		if err != nil {
			return wrapStoreError(errorSubjectRows, errorCodeAppend, classify(err))
		}
		return insertRows(transaction, table.Name, header, rows, next.Position+1, store.now())
	})
}

// Overwrite replaces the header and every row of a table in one transaction.
func (store *Store) Overwrite(ctx context.Context, table inventory.Table, rows []inventory.Row) error {
	if err := table.Validate(); err != nil {
		return err
	}
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		header := inventory.HeaderFor(nil, table)
		if err := writeHeader(transaction, table.Name, header, store.now()); err != nil {
			return err
		}
		if err := transaction.Where(sqlWhereTableName, table.Name).Delete(&TableRow{}).Error; err != nil {
			return wrapStoreError(errorSubjectRows, errorCodeOverwrite, classify(err))
		}
		return insertRows(transaction, table.Name, header, rows, 0, store.now())
	})
}

func readHeader(db *gorm.DB, name string) ([]string, error) {
	var model TableHeader
	err := db.Where(sqlWhereTableName, name).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreError(errorSubjectHeader, errorCodeRead, classify(err))
	}
	var header []string
	if err := json.Unmarshal(model.Columns, &header); err != nil {
		return nil, wrapStoreError(errorSubjectHeader, errorCodeDecode, err)
	}
	return header, nil
}

func writeHeader(db *gorm.DB, name string, header []string, at time.Time) error {
	encoded, err := json.Marshal(header)
	if err != nil {
		return wrapStoreError(errorSubjectHeader, errorCodeEncode, err)
	}
	model := TableHeader{Name: name, Columns: datatypes.JSON(encoded), UpdatedAt: at.UTC()}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "table_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"columns", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectHeader, errorCodeOverwrite, classify(err))
	}
	return nil
}

func insertRows(db *gorm.DB, name string, header []string, rows []inventory.Row, start int64, at time.Time) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]TableRow, 0, len(rows))
	for offset, row := range rows {
		encoded, err := json.Marshal(row.Project(header))
		if err != nil {
			return wrapStoreError(errorSubjectRows, errorCodeEncode, err)
		}
		models = append(models, TableRow{
			Name:      name,
			Position:  start + int64(offset),
			Cells:     datatypes.JSON(encoded),
			CreatedAt: at.UTC(),
		})
	}
	if err := db.CreateInBatches(&models, rowBatchSize).Error; err != nil {
		return wrapStoreError(errorSubjectRows, errorCodeAppend, classify(err))
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return inventory.WrapError(errorOperationStore, subject, code, err)
}

// classify marks contention and availability failures as transient; everything else stays fatal.
func classify(err error) error {
	return pgerr.Classify(err, isSQLiteContention)
}

func isSQLiteContention(err error) bool {
	var sqliteErr *gosqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code() & 0xFF
	return code == sqliteBusyCode || code == sqliteLockedCode
}

var _ inventory.TabularStore = (*Store)(nil)
