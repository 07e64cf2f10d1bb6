package pgstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/MarkoPoloResearchLab/cafestock/internal/store/pgerr"
	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errorOperationStore     = "store"
	errorSubjectHeader      = "header"
	errorSubjectRows        = "rows"
	errorSubjectSchema      = "schema"
	errorSubjectTransaction = "transaction"
	errorCodeAppend         = "append"
	errorCodeBegin          = "begin"
	errorCodeCommit         = "commit"
	errorCodeDecode         = "decode"
	errorCodeEncode         = "encode"
	errorCodeEnsure         = "ensure"
	errorCodeLock           = "lock"
	errorCodeOverwrite      = "overwrite"
	errorCodeRead           = "read"

	sqlEnsureSchema = `
		create table if not exists tabular_headers (
			table_name text primary key,
			columns jsonb not null,
			updated_at timestamptz not null default now()
		);
		create table if not exists tabular_rows (
			row_id bigserial primary key,
			table_name text not null,
			position bigint not null,
			cells jsonb not null,
			created_at timestamptz not null default now()
		);
		create index if not exists idx_tabular_rows_table_position on tabular_rows(table_name, position)
	`

	sqlLockTable = `select pg_advisory_xact_lock(hashtext($1))`

	sqlSelectHeader = `
		select columns::text from tabular_headers where table_name = $1
	`

	sqlUpsertHeader = `
		insert into tabular_headers(table_name, columns, updated_at) values ($1, $2::jsonb, now())
		on conflict (table_name) do update set columns = excluded.columns, updated_at = excluded.updated_at
	`

	sqlSelectRows = `
		select cells::text from tabular_rows where table_name = $1 order by position asc, row_id asc
	`

	sqlNextPosition = `
		select coalesce(max(position), -1) + 1 from tabular_rows where table_name = $1
	`

	sqlInsertRow = `
		insert into tabular_rows(table_name, position, cells) values ($1, $2, $3::jsonb)
	`

	sqlDeleteRows = `
		delete from tabular_rows where table_name = $1
	`
)

// Store implements inventory.TabularStore using a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the header and row tables when missing.
func (store *Store) EnsureSchema(ctx context.Context) error {
	if _, err := store.pool.Exec(ctx, sqlEnsureSchema); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeEnsure, pgerr.Classify(err))
	}
	return nil
}

// ReadAll returns the header and rows of a table in append order.
func (store *Store) ReadAll(ctx context.Context, table inventory.Table) (inventory.Records, error) {
	if err := table.Validate(); err != nil {
		return inventory.Records{}, err
	}
	header, err := readHeader(ctx, store.pool, table.Name)
	if err != nil {
		return inventory.Records{}, err
	}
	rows, err := store.pool.Query(ctx, sqlSelectRows, table.Name)
	if err != nil {
		return inventory.Records{}, wrapStoreError(errorSubjectRows, errorCodeRead, pgerr.Classify(err))
	}
	defer rows.Close()
	records := inventory.Records{Header: header}
	for rows.Next() {
		var encoded string
		if err := rows.Scan(&encoded); err != nil {
			return inventory.Records{}, wrapStoreError(errorSubjectRows, errorCodeRead, pgerr.Classify(err))
		}
		var cells []string
		if err := json.Unmarshal([]byte(encoded), &cells); err != nil {
			return inventory.Records{}, wrapStoreError(errorSubjectRows, errorCodeDecode, err)
		}
		records.Rows = append(records.Rows, inventory.RowFromCells(header, cells))
	}
	if err := rows.Err(); err != nil {
		return inventory.Records{}, wrapStoreError(errorSubjectRows, errorCodeRead, pgerr.Classify(err))
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
	return store.withTx(ctx, table.Name, func(tx pgx.Tx) error {
		header, err := readHeader(ctx, tx, table.Name)
		if err != nil {
			return err
		}
		if len(header) == 0 {
			header = inventory.HeaderFor(nil, table)
			if err := writeHeader(ctx, tx, table.Name, header); err != nil {
				return err
			}
		}
		var next int64
		if err := tx.QueryRow(ctx, sqlNextPosition, table.Name).Scan(&next); err != nil {
			return wrapStoreError(errorSubjectRows, errorCodeAppend, pgerr.Classify(err))
		}
		return insertRows(ctx, tx, table.Name, header, rows, next)
	})
}

// Overwrite replaces the header and every row of a table in one transaction.
func (store *Store) Overwrite(ctx context.Context, table inventory.Table, rows []inventory.Row) error {
	if err := table.Validate(); err != nil {
		return err
	}
	return store.withTx(ctx, table.Name, func(tx pgx.Tx) error {
		header := inventory.HeaderFor(nil, table)
		if err := writeHeader(ctx, tx, table.Name, header); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sqlDeleteRows, table.Name); err != nil {
			return wrapStoreError(errorSubjectRows, errorCodeOverwrite, pgerr.Classify(err))
		}
		return insertRows(ctx, tx, table.Name, header, rows, 0)
	})
}

// withTx runs fn in a transaction holding the per-table advisory lock.
func (store *Store) withTx(ctx context.Context, tableName string, fn func(tx pgx.Tx) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, pgerr.Classify(err))
	}
	if _, err := tx.Exec(ctx, sqlLockTable, tableName); err != nil {
		_ = tx.Rollback(ctx)
		return wrapStoreError(errorSubjectTransaction, errorCodeLock, pgerr.Classify(err))
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, pgerr.Classify(err))
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func readHeader(ctx context.Context, db querier, tableName string) ([]string, error) {
	var encoded string
	err := db.QueryRow(ctx, sqlSelectHeader, tableName).Scan(&encoded)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreError(errorSubjectHeader, errorCodeRead, pgerr.Classify(err))
	}
	var header []string
	if err := json.Unmarshal([]byte(encoded), &header); err != nil {
		return nil, wrapStoreError(errorSubjectHeader, errorCodeDecode, err)
	}
	return header, nil
}

func writeHeader(ctx context.Context, tx pgx.Tx, tableName string, header []string) error {
	encoded, err := json.Marshal(header)
	if err != nil {
		return wrapStoreError(errorSubjectHeader, errorCodeEncode, err)
	}
	if _, err := tx.Exec(ctx, sqlUpsertHeader, tableName, string(encoded)); err != nil {
		return wrapStoreError(errorSubjectHeader, errorCodeOverwrite, pgerr.Classify(err))
	}
	return nil
}

func insertRows(ctx context.Context, tx pgx.Tx, tableName string, header []string, rows []inventory.Row, start int64) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for offset, row := range rows {
		encoded, err := json.Marshal(row.Project(header))
		if err != nil {
			return wrapStoreError(errorSubjectRows, errorCodeEncode, err)
		}
		batch.Queue(sqlInsertRow, tableName, start+int64(offset), string(encoded))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return wrapStoreError(errorSubjectRows, errorCodeAppend, pgerr.Classify(err))
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return inventory.WrapError(errorOperationStore, subject, code, err)
}

var _ inventory.TabularStore = (*Store)(nil)
