package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
)

const (
	csvColumnDate      = "date"
	csvColumnMenuItem  = "menu_item"
	csvColumnModifiers = "modifiers"
	csvColumnQty       = "qty"
	csvColumnSource    = "source"
)

var errMissingCSVHeader = errors.New("sales csv: header row is required")

// readSaleLines parses a point-of-sale export with a header row.
func readSaleLines(reader io.Reader) ([]inventory.SaleLine, error) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true
	header, err := csvReader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errMissingCSVHeader
	}
	if err != nil {
		return nil, fmt.Errorf("sales csv: %w", err)
	}
	for index := range header {
		header[index] = strings.TrimPrefix(header[index], "\ufeff")
	}
	records := inventory.Records{Header: header}
	if err := records.Require("sales csv", csvColumnDate, csvColumnMenuItem, csvColumnQty); err != nil {
		return nil, err
	}

	var lines []inventory.SaleLine
	for lineNumber := 2; ; lineNumber++ {
		cells, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sales csv line %d: %w", lineNumber, err)
		}
		row := inventory.RowFromCells(header, cells)
		if row.IsBlank() {
			continue
		}
		date, err := inventory.ParseBusinessDate(row.Value(csvColumnDate))
		if err != nil {
			return nil, fmt.Errorf("sales csv line %d: %w", lineNumber, err)
		}
		quantity, err := inventory.NewQuantity(row.Value(csvColumnQty))
		if err != nil {
			return nil, fmt.Errorf("sales csv line %d: %w", lineNumber, err)
		}
		lines = append(lines, inventory.SaleLine{
			Date:      date,
			MenuItem:  row.Value(csvColumnMenuItem),
			Modifiers: inventory.ParseModifiers(row.Value(csvColumnModifiers)),
			Quantity:  quantity,
			Source:    row.Value(csvColumnSource),
		})
	}
	return lines, nil
}
