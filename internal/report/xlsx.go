package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	casesSheet      = "Cases"
	confidenceSheet = "Confidence"
)

// WriteXLSX writes t as a workbook with a "Cases" sheet of values, low-confidence cells
// highlighted, and a "Confidence" sheet of the matching scores.
func WriteXLSX(w io.Writer, t *Table) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName("Sheet1", casesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(confidenceSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	low, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#FFEB9C"}},
	})
	if err != nil {
		return fmt.Errorf("highlight style: %w", err)
	}

	headers := []string{"Document", "Case"}
	for _, c := range t.Columns {
		headers = append(headers, c.Label)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	for _, sheet := range []string{casesSheet, confidenceSheet} {
		for i, h := range headers {
			if err := setCell(f, sheet, i+1, 1, h); err != nil {
				return err
			}
		}
		if err := f.SetCellStyle(sheet, "A1", last, header); err != nil {
			return fmt.Errorf("%s header style: %w", sheet, err)
		}
		if err := f.SetColWidth(sheet, "A", "A", 32); err != nil {
			return fmt.Errorf("%s column width: %w", sheet, err)
		}
	}

	for i, r := range t.Rows {
		row := i + 2
		for _, sheet := range []string{casesSheet, confidenceSheet} {
			if err := setCell(f, sheet, 1, row, r.Filename); err != nil {
				return err
			}
			if err := setCell(f, sheet, 2, row, r.Case); err != nil {
				return err
			}
		}
		for j, fv := range r.Cells {
			col := j + 3
			if err := setCell(f, casesSheet, col, row, fv.Value); err != nil {
				return err
			}
			if err := setCell(f, confidenceSheet, col, row, fv.Confidence); err != nil {
				return err
			}
			if fv.IsLowConfidence() {
				cell, err := excelize.CoordinatesToCellName(col, row)
				if err != nil {
					return err
				}
				if err := f.SetCellStyle(casesSheet, cell, cell, low); err != nil {
					return fmt.Errorf("highlight %s: %w", cell, err)
				}
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cell, v); err != nil {
		return fmt.Errorf("%s!%s: %w", sheet, cell, err)
	}
	return nil
}
