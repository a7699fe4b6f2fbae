package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Имена листов выгрузки
const (
	SummarySheet = "Сводка"
	GuestsSheet  = "Гости"
	StaffSheet   = "Сотрудники"
)

// XLSXExporter формирует отчет в формате Excel
type XLSXExporter struct{}

// Export возвращает XLSX со сводкой, гостями и сотрудниками
func (XLSXExporter) Export(summary *Summary, guests []GuestRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{GuestsSheet, StaffSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}

	if err := writeTable(f, SummarySheet, nil, SummaryRows(summary), bold); err != nil {
		return nil, err
	}

	guestRows := make([][]string, 0, len(guests))
	for _, g := range guests {
		guestRows = append(guestRows, g.Strings())
	}
	if err := writeTable(f, GuestsSheet, GuestHeader, guestRows, bold); err != nil {
		return nil, err
	}

	if err := writeTable(f, StaffSheet, StaffHeader, StaffRows(summary), bold); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(f *excelize.File, sheet string, header []string, rows [][]string, headerStyle int) error {
	row := 1
	width := len(header)

	if header != nil {
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return fmt.Errorf("failed to write %s header: %w", sheet, err)
		}
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("failed to style %s header: %w", sheet, err)
		}
		row++
	}

	for _, values := range rows {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		values := values
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
		}
		if len(values) > width {
			width = len(values)
		}
		row++
	}

	if width > 0 {
		lastCol, _ := excelize.ColumnNumberToName(width)
		if err := f.SetColWidth(sheet, "A", lastCol, 20); err != nil {
			return fmt.Errorf("failed to set %s column width: %w", sheet, err)
		}
	}
	return nil
}
