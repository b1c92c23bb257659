package ledger

import (
	"github.com/shopspring/decimal"

	"tally/internal/core"
)

// TotalLabel is the date-column label of the derived totals row.
const TotalLabel = "Total"

var hundred = decimal.NewFromInt(100)

// RowTotal is the sum of the written cells of one date.
type RowTotal struct {
	Date  core.Date
	Total decimal.Decimal
}

// ColumnTotal is the sum of the written cells of one category. Cells counts
// the written cells; a column with no written cell has a null total.
type ColumnTotal struct {
	Category string
	Total    decimal.Decimal
	Cells    int
}

// IsNull reports whether the column holds no written cell.
func (c ColumnTotal) IsNull() bool { return c.Cells == 0 }

// Totals are derived from a snapshot and never persisted.
type Totals struct {
	Rows    []RowTotal
	Columns []ColumnTotal
	Grand   decimal.Decimal
}

// Column returns the total for category, if the column exists.
func (t Totals) Column(category string) (ColumnTotal, bool) {
	category = core.NormalizeCategory(category)
	for _, c := range t.Columns {
		if c.Category == category {
			return c, true
		}
	}
	return ColumnTotal{}, false
}

// Share is one category's slice of the grand total.
type Share struct {
	Category string
	Total    decimal.Decimal
	Fraction decimal.Decimal
}

// Percent returns the share as a percentage rounded to two places.
func (s Share) Percent() decimal.Decimal {
	return s.Fraction.Mul(hundred).Round(2)
}

// ComputeTotals sums every row, every column and the whole table.
func ComputeTotals(s Snapshot) Totals {
	t := Totals{
		Rows:    make([]RowTotal, 0, len(s.rows)),
		Columns: make([]ColumnTotal, len(s.categories)),
		Grand:   decimal.Zero,
	}
	for i, c := range s.categories {
		t.Columns[i] = ColumnTotal{Category: c, Total: decimal.Zero}
	}
	for _, r := range s.rows {
		rt := RowTotal{Date: r.Date, Total: decimal.Zero}
		for i, c := range s.categories {
			v, ok := r.cells[c]
			if !ok {
				continue
			}
			rt.Total = rt.Total.Add(v)
			t.Columns[i].Total = t.Columns[i].Total.Add(v)
			t.Columns[i].Cells++
		}
		t.Rows = append(t.Rows, rt)
		t.Grand = t.Grand.Add(rt.Total)
	}
	return t
}

// Shares returns each category's fraction of the grand total, in column
// order. Categories with a null or zero total are left out, and so is
// everything when the grand total is zero.
func Shares(s Snapshot) []Share {
	t := ComputeTotals(s)
	if t.Grand.IsZero() {
		return nil
	}
	var out []Share
	for _, c := range t.Columns {
		if c.IsNull() || c.Total.IsZero() {
			continue
		}
		out = append(out, Share{
			Category: c.Category,
			Total:    c.Total,
			Fraction: c.Total.Div(t.Grand),
		})
	}
	return out
}
