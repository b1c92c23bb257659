// Package importer reads legacy wide-table workbooks: a header row with a
// Date column and one column per category, blank cells for "no entry" and
// an optional Total row. Both .xlsx and the older binary .xls are read.
package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/store/grid"
)

// maxXLSRows bounds how many rows are read from a binary workbook sheet.
const maxXLSRows = 100000

// Sheet is one book read from a workbook.
type Sheet struct {
	Name     string
	Book     core.Book
	Snapshot ledger.Snapshot
}

// Recorder stores one imported entry.
type Recorder interface {
	Record(ctx context.Context, book core.Book, e core.Entry) (core.Entry, error)
}

// Result summarizes an import.
type Result struct {
	Sheets  []string
	Entries map[core.Book]int
}

// ReadFile parses the workbook at path, choosing the reader by extension.
func ReadFile(path string) ([]Sheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(bytes.NewReader(data))
	case ".xls":
		return ReadXLS(bytes.NewReader(data))
	default:
		return nil, &core.ValidationError{Field: "file", Reason: "expected a .xls or .xlsx workbook"}
	}
}

// ReadXLSX parses an Office Open XML workbook.
func ReadXLSX(r io.Reader) ([]Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	raw := map[string][][]string{}
	names := f.GetSheetList()
	for _, name := range names {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		raw[name] = rows
	}
	return decodeSheets(names, raw)
}

// ReadXLS parses a legacy BIFF (.xls) workbook.
func ReadXLS(r io.ReadSeeker) ([]Sheet, error) {
	wb, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}

	raw := map[string][][]string{}
	var names []string
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		names = append(names, sheet.Name)
		raw[sheet.Name] = xlsRows(sheet)
	}
	return decodeSheets(names, raw)
}

func xlsRows(sheet *xls.WorkSheet) [][]string {
	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow) && i < maxXLSRows; i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}
	return rows
}

// decodeSheets maps sheets named Expenses or Income to their book. A
// workbook with neither is read as a single expense sheet, the first one.
func decodeSheets(names []string, raw map[string][][]string) ([]Sheet, error) {
	var out []Sheet
	for _, name := range names {
		book, ok := bookOf(name)
		if !ok {
			continue
		}
		s, err := grid.Decode(raw[name])
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		out = append(out, Sheet{Name: name, Book: book, Snapshot: s})
	}
	if len(out) > 0 {
		return out, nil
	}
	if len(names) == 0 {
		return nil, &core.ValidationError{Field: "file", Reason: "workbook has no sheets"}
	}
	s, err := grid.Decode(raw[names[0]])
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", names[0], err)
	}
	return []Sheet{{Name: names[0], Book: core.Expenses, Snapshot: s}}, nil
}

func bookOf(sheet string) (core.Book, bool) {
	switch strings.ToLower(strings.TrimSpace(sheet)) {
	case "expenses":
		return core.Expenses, true
	case "income":
		return core.Income, true
	default:
		return "", false
	}
}

// Import records every written cell of every sheet as one entry. Entries
// recorded before a failure stay recorded.
func Import(ctx context.Context, rec Recorder, sheets []Sheet, description string) (Result, error) {
	res := Result{Entries: map[core.Book]int{}}
	for _, sh := range sheets {
		res.Sheets = append(res.Sheets, sh.Name)
		for _, e := range ledger.Entries(sh.Snapshot) {
			e.Description = core.NormalizeDescription(description)
			if _, err := rec.Record(ctx, sh.Book, e); err != nil {
				return res, fmt.Errorf("import %s %s %s: %w", sh.Book, e.Date, e.Category, err)
			}
			res.Entries[sh.Book]++
		}
	}
	return res, nil
}
