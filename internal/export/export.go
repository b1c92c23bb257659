// Package export writes ledger entries as downloadable spreadsheets.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tally/internal/core"
)

// Header is the fixed column order of every export.
var Header = []string{"Date", "Category", "Amount", "Description"}

// Format selects the file type of an export.
type Format string

const (
	XLSX Format = "xlsx"
	CSV  Format = "csv"
)

// ParseFormat maps a query or flag value to a Format, defaulting to XLSX.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return XLSX, nil
	case XLSX, CSV:
		return f, nil
	default:
		return "", &core.ValidationError{Field: "format", Reason: "unknown export format " + s}
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == CSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileName names the download, e.g. expenses_20240131.xlsx.
func (f Format) FileName(book core.Book, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", book, now.Format("20060102"), f)
}

// Write dispatches to WriteXLSX or WriteCSV.
func Write(w io.Writer, f Format, book core.Book, entries []core.Entry) error {
	switch f {
	case CSV:
		return WriteCSV(w, entries)
	case XLSX:
		return WriteXLSX(w, sheetName(book), entries)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

// Sorted returns a copy of entries ordered by date, then category, then
// creation time.
func Sorted(entries []core.Entry) []core.Entry {
	out := append([]core.Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

// WriteCSV writes the header and one row per entry.
func WriteCSV(w io.Writer, entries []core.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range Sorted(entries) {
		if err := cw.Write(record(e)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a single-sheet workbook. Amounts are numeric cells.
func WriteXLSX(w io.Writer, sheet string, entries []core.Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("name sheet: %w", err)
		}
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, e := range Sorted(entries) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{e.Date.String(), e.Category, e.Amount.Round(core.AmountPlaces).InexactFloat64(), e.Description}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	f.SetColWidth(sheet, "A", "A", 12)
	f.SetColWidth(sheet, "B", "B", 18)
	f.SetColWidth(sheet, "C", "C", 12)
	f.SetColWidth(sheet, "D", "D", 40)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func record(e core.Entry) []string {
	return []string{e.Date.String(), e.Category, core.FormatAmount(e.Amount), e.Description}
}

func sheetName(book core.Book) string {
	if book == core.Income {
		return "Income"
	}
	return "Expenses"
}
