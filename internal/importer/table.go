package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
)

// table is a header-indexed sheet. Row values are trimmed; missing cells
// read as "".
type table struct {
	cols map[string]int
	rows [][]string
}

func (t table) has(col string) bool {
	_, ok := t.cols[col]
	return ok
}

func (t table) get(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t table) missing(required ...string) []string {
	var out []string
	for _, c := range required {
		if !t.has(c) {
			out = append(out, c)
		}
	}
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// readTable parses an uploaded sheet. The format follows the file
// extension: .xlsx through excelize (first sheet), .csv through
// encoding/csv.
func readTable(r io.Reader, filename string) (table, error) {
	var raw [][]string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return table{}, apperr.Validation("Error processing Excel file: %v", err)
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return table{}, apperr.Validation("workbook has no sheets")
		}
		raw, err = f.GetRows(sheets[0])
		if err != nil {
			return table{}, apperr.Validation("Error processing Excel file: %v", err)
		}
	case ".csv":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		var err error
		raw, err = cr.ReadAll()
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return table{}, apperr.Validation("invalid csv at line %d: %v", pe.Line, pe.Err)
			}
			return table{}, fmt.Errorf("read csv: %w", err)
		}
	default:
		return table{}, apperr.Validation("Invalid file format. Please upload an .xlsx or .csv file")
	}
	if len(raw) == 0 {
		return table{}, apperr.Validation("file is empty")
	}
	t := table{cols: make(map[string]int, len(raw[0])), rows: raw[1:]}
	for i, h := range raw[0] {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := t.cols[h]; h != "" && !dup {
			t.cols[h] = i
		}
	}
	return t, nil
}

// writeTemplate renders a one-sheet workbook with a header row and example
// rows.
func writeTemplate(w io.Writer, sheet string, header []string, examples [][]string) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}
	for i, row := range append([][]string{header}, examples...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			return err
		}
	}
	return f.Write(w)
}
