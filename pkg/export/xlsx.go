package export

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXRenderer writes the dataset to the first sheet of a new workbook.
type XLSXRenderer struct{}

func NewXLSXRenderer() *XLSXRenderer {
	return &XLSXRenderer{}
}

func (r *XLSXRenderer) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck
	sheet := f.GetSheetName(0)

	if err := writeRow(f, sheet, 1, data.Headers); err != nil {
		return nil, err
	}
	for i := range data.Rows {
		if err := writeRow(f, sheet, i+2, data.record(i)); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []string) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("write xlsx cell %s: %w", cell, err)
		}
	}
	return nil
}

// ReadXLSX loads the first sheet of a workbook. The first row becomes the
// headers; blank rows are skipped.
func ReadXLSX(path string) (Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close() //nolint:errcheck

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return Dataset{}, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Dataset{}, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return Dataset{}, errors.New("sheet " + sheet + " is empty")
	}

	data := Dataset{Title: sheet, Headers: rows[0]}
	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		data.Rows = append(data.Rows, row)
	}
	return data, nil
}
