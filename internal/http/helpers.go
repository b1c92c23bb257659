package http

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/services"
)

// formatMoney renders an amount for display, e.g. "€1,234.50".
func formatMoney(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := core.FormatAmount(d.Abs())
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "€" + b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func bookTitle(b core.Book) string {
	if b == core.Income {
		return "Income"
	}
	return "Expenses"
}

type cellView struct {
	Category string
	Amount   string
	Null     bool
}

type rowView struct {
	Date  string
	Cells []cellView
	Total string
}

type shareView struct {
	Category string
	Amount   string
	Percent  string
	Width    int
}

type entryView struct {
	ID          string
	Date        string
	Category    string
	Amount      string
	Value       string
	Description string
}

// ledgerData feeds the "ledger" partial.
type ledgerData struct {
	Book       string
	Title      string
	Columns    []string
	Rows       []rowView
	Totals     []string // "" for a column without written cells
	Grand      string
	Shares     []shareView
	Entries    []entryView
	EntryIDs   bool
	Remaining  string
	Overspent  bool
	Error      string
	TotalLabel string
}

// indexData feeds the index page.
type indexData struct {
	Today      string
	Book       string
	Categories []string
	Sources    []string
	Backend    string
	Error      string
}

func newLedgerData(v services.View, book core.Book) ledgerData {
	bv := v.Book(book)
	d := ledgerData{
		Book:       book.String(),
		Title:      bookTitle(book),
		Columns:    bv.Snapshot.Categories(),
		Grand:      formatMoney(bv.Totals.Grand),
		EntryIDs:   v.EntryIDs,
		Remaining:  formatMoney(v.Remaining),
		Overspent:  v.Remaining.IsNegative(),
		TotalLabel: ledger.TotalLabel,
	}

	rowTotals := make(map[string]decimal.Decimal, len(bv.Totals.Rows))
	for _, rt := range bv.Totals.Rows {
		rowTotals[rt.Date.String()] = rt.Total
	}
	for _, r := range bv.Snapshot.Rows() {
		rv := rowView{Date: r.Date.String(), Total: formatMoney(rowTotals[r.Date.String()])}
		for _, c := range d.Columns {
			cell := r.Cell(c)
			cv := cellView{Category: c, Null: !cell.Valid}
			if cell.Valid {
				cv.Amount = formatMoney(cell.Decimal)
			}
			rv.Cells = append(rv.Cells, cv)
		}
		d.Rows = append(d.Rows, rv)
	}

	for _, c := range bv.Totals.Columns {
		if c.IsNull() {
			d.Totals = append(d.Totals, "")
			continue
		}
		d.Totals = append(d.Totals, formatMoney(c.Total))
	}

	for _, s := range bv.Shares {
		d.Shares = append(d.Shares, shareView{
			Category: s.Category,
			Amount:   formatMoney(s.Total),
			Percent:  s.Percent().StringFixed(2) + "%",
			Width:    shareWidth(s.Percent()),
		})
	}

	for _, e := range bv.Entries {
		d.Entries = append(d.Entries, entryView{
			ID:          e.ID,
			Date:        e.Date.String(),
			Category:    e.Category,
			Amount:      formatMoney(e.Amount),
			Value:       core.FormatAmount(e.Amount),
			Description: e.Description,
		})
	}
	return d
}

// shareWidth turns a percentage into a bar width, keeping tiny shares
// visible.
func shareWidth(pct decimal.Decimal) int {
	w := int(pct.Round(0).IntPart())
	switch {
	case w < 2 && pct.IsPositive():
		return 2
	case w > 100:
		return 100
	}
	return w
}

func newIndexData(v services.View, book core.Book, now time.Time) indexData {
	return indexData{
		Today:      core.DateOf(now).String(),
		Book:       book.String(),
		Categories: v.Categories,
		Sources:    v.Sources,
		Backend:    v.Backend,
	}
}
