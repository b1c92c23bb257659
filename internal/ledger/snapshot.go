// Package ledger implements the consolidation model shared by every store:
// raw (date, category, amount) entries folded into a wide table with one row
// per date and one column per category.
//
// Every operation takes a Snapshot value and returns a new one. Nothing in
// this package holds state between calls.
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

// Snapshot is the consolidated, wide form of a book.
//
// A cell that was never written is null (Valid=false). A cell holding an
// entry of size zero is Valid with a zero value. The two are never conflated.
type Snapshot struct {
	categories []string
	rows       []Row // ascending by date, dates unique
}

// Row is one date of the snapshot. Cells only holds written categories.
type Row struct {
	Date  core.Date
	cells map[string]decimal.Decimal
}

// New returns an empty snapshot with the given columns declared.
func New(categories ...string) Snapshot {
	var s Snapshot
	for _, c := range categories {
		c = core.NormalizeCategory(c)
		if c != "" && s.columnIndex(c) < 0 {
			s.categories = append(s.categories, c)
		}
	}
	return s
}

// Categories returns the column names in insertion order.
func (s Snapshot) Categories() []string {
	return append([]string(nil), s.categories...)
}

// Rows returns the rows in ascending date order.
func (s Snapshot) Rows() []Row {
	out := make([]Row, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.clone()
	}
	return out
}

// Dates returns the row dates in ascending order.
func (s Snapshot) Dates() []core.Date {
	out := make([]core.Date, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.Date
	}
	return out
}

// Len returns the number of rows.
func (s Snapshot) Len() int { return len(s.rows) }

// IsEmpty reports whether the snapshot has neither rows nor columns.
func (s Snapshot) IsEmpty() bool { return len(s.rows) == 0 && len(s.categories) == 0 }

// HasCategory reports whether the column exists.
func (s Snapshot) HasCategory(category string) bool {
	return s.columnIndex(core.NormalizeCategory(category)) >= 0
}

// HasDate reports whether a row exists for the date.
func (s Snapshot) HasDate(date core.Date) bool {
	_, ok := s.rowIndex(date)
	return ok
}

// Cell returns the value at (date, category). The result is null when the
// row or column is missing or the cell was never written.
func (s Snapshot) Cell(date core.Date, category string) decimal.NullDecimal {
	i, ok := s.rowIndex(date)
	if !ok {
		return decimal.NullDecimal{}
	}
	return s.rows[i].Cell(core.NormalizeCategory(category))
}

// Cell returns the value stored for category in this row.
func (r Row) Cell(category string) decimal.NullDecimal {
	v, ok := r.cells[category]
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v)
}

// IsBlank reports whether every cell of the row is null.
func (r Row) IsBlank() bool { return len(r.cells) == 0 }

// Equal reports whether both snapshots hold the same columns (in any order),
// the same dates and the same cell values, null and zero kept distinct.
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s.categories) != len(o.categories) || len(s.rows) != len(o.rows) {
		return false
	}
	for _, c := range s.categories {
		if o.columnIndex(c) < 0 {
			return false
		}
	}
	for i := range s.rows {
		a, b := s.rows[i], o.rows[i]
		if !a.Date.Equal(b.Date) || len(a.cells) != len(b.cells) {
			return false
		}
		for c, v := range a.cells {
			w, ok := b.cells[c]
			if !ok || !v.Equal(w) {
				return false
			}
		}
	}
	return true
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{
		categories: append([]string(nil), s.categories...),
		rows:       make([]Row, len(s.rows)),
	}
	for i, r := range s.rows {
		out.rows[i] = r.clone()
	}
	return out
}

func (r Row) clone() Row {
	cells := make(map[string]decimal.Decimal, len(r.cells))
	for k, v := range r.cells {
		cells[k] = v
	}
	return Row{Date: r.Date, cells: cells}
}

func (s Snapshot) columnIndex(category string) int {
	for i, c := range s.categories {
		if c == category {
			return i
		}
	}
	return -1
}

// rowIndex returns the position of date, or the insertion point and false.
func (s Snapshot) rowIndex(date core.Date) (int, bool) {
	i := sort.Search(len(s.rows), func(i int) bool {
		return !s.rows[i].Date.Before(date)
	})
	return i, i < len(s.rows) && s.rows[i].Date.Equal(date)
}
