package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// sheetWriter appends rows to the sheets of one workbook.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

var sheetNameReplacer = strings.NewReplacer(":", " ", "\\", " ", "/", " ", "?", " ", "*", " ", "[", "(", "]", ")")

// sheetName makes name acceptable to Excel: no reserved characters, at most 31 runes.
func sheetName(name string) string {
	name = strings.TrimSpace(sheetNameReplacer.Replace(name))
	if name == "" {
		name = "Sheet"
	}
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	return name
}

// AddSheet starts a new sheet; the first call renames the default sheet.
func (w *sheetWriter) AddSheet(name string) error {
	name = sheetName(name)

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes bold column headers and freezes them.
func (w *sheetWriter) WriteHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.WriteRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	return w.file.SetPanes(w.currentSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// WriteRow writes a data row to the current sheet.
func (w *sheetWriter) WriteRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}

	w.currentRow++
	return nil
}

// Save writes the workbook and releases it.
func (w *sheetWriter) Save(wr io.Writer) error {
	defer w.file.Close()
	return w.file.Write(wr)
}
