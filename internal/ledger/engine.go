package ledger

import (
	"github.com/shopspring/decimal"

	"tally/internal/core"
)

// Upsert records amount at (date, category), creating the column and row on
// first use. Repeated submissions for the same cell accumulate; a null cell
// takes the amount as is. An amount of zero is recorded, so the cell becomes
// non-null even though no total moves.
func Upsert(s Snapshot, date core.Date, category string, amount decimal.Decimal) (Snapshot, error) {
	category = core.NormalizeCategory(category)
	if category == "" {
		return s, core.ErrEmptyCategory
	}
	if amount.IsNegative() {
		return s, core.ErrNegativeAmount
	}
	if err := date.Validate(); err != nil {
		return s, err
	}

	out := s.clone()
	if out.columnIndex(category) < 0 {
		out.categories = append(out.categories, category)
	}
	i, ok := out.rowIndex(date)
	if !ok {
		out.rows = append(out.rows, Row{})
		copy(out.rows[i+1:], out.rows[i:])
		out.rows[i] = Row{Date: date, cells: map[string]decimal.Decimal{}}
	}
	row := out.rows[i]
	if cur, ok := row.cells[category]; ok {
		row.cells[category] = cur.Add(amount)
	} else {
		row.cells[category] = amount
	}
	return out, nil
}

// DeleteCell clears (date, category) back to null. A row left with no
// written cell is removed.
func DeleteCell(s Snapshot, date core.Date, category string) (Snapshot, error) {
	category = core.NormalizeCategory(category)
	i, ok := s.rowIndex(date)
	if !ok {
		return s, &core.NotFoundError{What: "date", Key: date.String()}
	}
	if s.columnIndex(category) < 0 {
		return s, &core.NotFoundError{What: "category", Key: category}
	}

	out := s.clone()
	delete(out.rows[i].cells, category)
	if out.rows[i].IsBlank() {
		out.rows = append(out.rows[:i], out.rows[i+1:]...)
	}
	return out, nil
}

// DeleteCategory drops a column and everything in it. Rows whose only
// values were in that column are dropped with it.
func DeleteCategory(s Snapshot, category string) (Snapshot, error) {
	category = core.NormalizeCategory(category)
	ci := s.columnIndex(category)
	if ci < 0 {
		return s, &core.NotFoundError{What: "category", Key: category}
	}

	out := s.clone()
	out.categories = append(out.categories[:ci], out.categories[ci+1:]...)
	rows := out.rows[:0]
	for _, r := range out.rows {
		delete(r.cells, category)
		if !r.IsBlank() {
			rows = append(rows, r)
		}
	}
	out.rows = rows
	return out, nil
}

// Consolidate folds raw entries into a snapshot by summing amounts per
// (date, category). Cell values do not depend on entry order; columns appear
// in the order categories are first seen. Entries that would fail Upsert
// are left out; ConsolidateChecked reports them.
func Consolidate(entries []core.Entry) Snapshot {
	s, _ := ConsolidateChecked(entries)
	return s
}

// Skipped is an entry Consolidate could not fold in, with the reason.
type Skipped struct {
	Entry core.Entry
	Err   error
}

// ConsolidateChecked is Consolidate returning the entries it left out.
func ConsolidateChecked(entries []core.Entry) (Snapshot, []Skipped) {
	var (
		s       Snapshot
		skipped []Skipped
	)
	for _, e := range entries {
		next, err := Upsert(s, e.Date, e.Category, e.Amount)
		if err != nil {
			skipped = append(skipped, Skipped{Entry: e, Err: err})
			continue
		}
		s = next
	}
	return s, skipped
}

// Entries flattens the snapshot into one synthetic entry per written cell,
// ordered by date then column order. IDs and descriptions are empty.
func Entries(s Snapshot) []core.Entry {
	var out []core.Entry
	for _, r := range s.rows {
		for _, c := range s.categories {
			if v, ok := r.cells[c]; ok {
				out = append(out, core.Entry{Date: r.Date, Category: c, Amount: v})
			}
		}
	}
	return out
}

// DeleteEntriesByValue removes every entry matching the filter and returns
// the survivors with the number removed. Duplicates sharing the same values
// all go; use DeleteEntryByID to remove a single one.
func DeleteEntriesByValue(entries []core.Entry, f core.EntryFilter) ([]core.Entry, int) {
	out := make([]core.Entry, 0, len(entries))
	for _, e := range entries {
		if f.Matches(e) {
			continue
		}
		out = append(out, e)
	}
	return out, len(entries) - len(out)
}

// DeleteEntryByID removes the single entry carrying id.
func DeleteEntryByID(entries []core.Entry, id string) ([]core.Entry, error) {
	for i, e := range entries {
		if e.ID == id {
			out := make([]core.Entry, 0, len(entries)-1)
			out = append(out, entries[:i]...)
			return append(out, entries[i+1:]...), nil
		}
	}
	return entries, &core.NotFoundError{What: "entry", Key: id}
}
