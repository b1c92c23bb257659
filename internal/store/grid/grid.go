// Package grid converts a snapshot to and from the cell matrix of a
// spreadsheet: a header row of "Date" followed by category names, then one
// row per date. Blank cells are null.
package grid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/ledger"
)

// DateHeader labels the first column.
const DateHeader = "Date"

// Spreadsheet serial dates count days from this epoch.
var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

var dateLayouts = []string{
	core.DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"01-02-06",
	"1/2/2006",
}

// Encode renders the snapshot as a header row plus one row per date. Cells
// are float64 so spreadsheets treat them as numbers; null cells are "".
// The totals row is not written.
func Encode(s ledger.Snapshot) [][]any {
	cats := s.Categories()
	header := make([]any, 0, len(cats)+1)
	header = append(header, DateHeader)
	for _, c := range cats {
		header = append(header, c)
	}
	out := [][]any{header}
	for _, r := range s.Rows() {
		row := make([]any, 0, len(cats)+1)
		row = append(row, r.Date.String())
		for _, c := range cats {
			if v := r.Cell(c); v.Valid {
				row = append(row, v.Decimal.InexactFloat64())
			} else {
				row = append(row, "")
			}
		}
		out = append(out, row)
	}
	return out
}

// Decode reads a matrix produced by Encode or edited by hand. The date
// column is found by its header, defaulting to the first column. Rows whose
// date cell is blank or reads "Total" are skipped. Duplicate dates merge.
func Decode(rows [][]string) (ledger.Snapshot, error) {
	if len(rows) == 0 {
		return ledger.New(), nil
	}
	header := rows[0]
	dateCol := 0
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), DateHeader) {
			dateCol = i
			break
		}
	}

	cats := make(map[int]string, len(header))
	var order []string
	for i, h := range header {
		if i == dateCol {
			continue
		}
		if c := core.NormalizeCategory(h); c != "" {
			cats[i] = c
			order = append(order, c)
		}
	}

	s := ledger.New(order...)
	for n, row := range rows[1:] {
		if dateCol >= len(row) {
			continue
		}
		raw := strings.TrimSpace(row[dateCol])
		if raw == "" || strings.EqualFold(raw, ledger.TotalLabel) {
			continue
		}
		date, err := ParseDateCell(raw)
		if err != nil {
			return ledger.Snapshot{}, cellError(n+2, DateHeader, err)
		}
		for i, cell := range row {
			cat, ok := cats[i]
			if !ok {
				continue
			}
			v, ok, err := ParseAmountCell(cell)
			if err != nil {
				return ledger.Snapshot{}, cellError(n+2, cat, err)
			}
			if !ok {
				continue
			}
			if s, err = ledger.Upsert(s, date, cat, v); err != nil {
				return ledger.Snapshot{}, cellError(n+2, cat, err)
			}
		}
	}
	return s, nil
}

// ParseDateCell accepts ISO dates, a few common spreadsheet renderings and
// serial day numbers.
func ParseDateCell(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 1 && f < 2958466 {
		days := int(math.Floor(f))
		return core.DateOf(serialEpoch.AddDate(0, 0, days)), nil
	}
	return core.Date{}, &core.ValidationError{Field: "date", Reason: fmt.Sprintf("unrecognized date %q", s)}
}

// cellError names the offending cell so a hand edit can be found and
// fixed. Row numbers are 1-based as the spreadsheet shows them.
func cellError(row int, column string, err error) error {
	reason := err.Error()
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		reason = ve.Reason
	}
	return &core.ValidationError{
		Field:  fmt.Sprintf("cell at row %d, column %q", row, column),
		Reason: reason,
	}
}

// ParseAmountCell returns ok=false for a blank cell. Besides what the entry
// form accepts it reads hand-typed spreadsheet renderings: a currency sign,
// thousands separators ("1,234.50", "1.234,50", "1 234,50") and exponent
// notation ("1.5e+06").
func ParseAmountCell(s string) (decimal.Decimal, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false, nil
	}
	cleaned := stripGrouping(s)
	v, err := core.ParseAmount(cleaned)
	if err == nil {
		return v, true, nil
	}
	if d, derr := decimal.NewFromString(cleaned); derr == nil {
		if d.IsNegative() {
			return decimal.Decimal{}, false, core.ErrNegativeAmount
		}
		return d.Round(core.AmountPlaces), true, nil
	}
	return decimal.Decimal{}, false, &core.ValidationError{
		Field:  "amount",
		Reason: fmt.Sprintf("unreadable amount %q", s),
	}
}

// stripGrouping drops currency signs and spaces, then removes thousands
// separators. With both "," and "." present the last one is the decimal
// separator. A lone separator is left for core.ParseAmount, which reads
// it as decimal.
func stripGrouping(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '€', '$', '£', ' ', '\u00a0', '\'':
			return -1
		}
		return r
	}, s)

	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		return strings.ReplaceAll(s, ".", "")
	case dot >= 0 && comma >= 0:
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") > 1:
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// Strings converts an API value matrix to trimmed strings. Numbers are
// written in plain decimal notation, never with an exponent.
func Strings(values [][]any) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = cellString(v)
		}
	}
	return out
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return decimal.NewFromFloat(x).String()
	case float32:
		return decimal.NewFromFloat32(x).String()
	case string:
		return strings.TrimSpace(x)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
