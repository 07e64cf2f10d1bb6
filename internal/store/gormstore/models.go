package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// TableHeader mirrors the tabular_headers table: one column list per logical table.
type TableHeader struct {
	Name      string         `gorm:"column:table_name;primaryKey"`
	Columns   datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (TableHeader) TableName() string { return "tabular_headers" }

// TableRow mirrors the tabular_rows table. Position preserves append order.
type TableRow struct {
	RowID     uint64         `gorm:"primaryKey;autoIncrement"`
	Name      string         `gorm:"column:table_name;not null;index:idx_tabular_rows_table_position,priority:1"`
	Position  int64          `gorm:"not null;index:idx_tabular_rows_table_position,priority:2"`
	Cells     datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (TableRow) TableName() string { return "tabular_rows" }
