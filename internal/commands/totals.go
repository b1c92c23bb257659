package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/services"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	remainingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	overspentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func newTotalsCommand(a *app) *cobra.Command {
	var bookFlag string

	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Print the consolidated table with its totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			books, err := selectBooks(bookFlag)
			if err != nil {
				return err
			}

			svc, closeLedger, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeLedger()

			v, err := svc.View(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, b := range books {
				fmt.Fprintln(out, renderBook(v.Book(b)))
			}
			if len(books) > 1 {
				fmt.Fprintln(out, renderRemaining(v.Remaining))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bookFlag, "book", "", "expenses or income (default both)")
	return cmd
}

// selectBooks maps the --book flag to the books to print. An empty flag
// selects both.
func selectBooks(flag string) ([]core.Book, error) {
	if strings.TrimSpace(flag) == "" {
		return []core.Book{core.Expenses, core.Income}, nil
	}
	b, err := core.ParseBook(flag)
	if err != nil {
		return nil, err
	}
	return []core.Book{b}, nil
}

// renderBook draws the wide table of one book: a Date column, one column
// per category, a per-date total column and a final Total row. Null cells
// stay blank, written zeros print as 0.00.
func renderBook(bv services.BookView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(bookHeading(bv.Book)))
	b.WriteString("\n")

	cats := bv.Snapshot.Categories()
	if len(cats) == 0 && bv.Snapshot.Len() == 0 {
		b.WriteString(mutedStyle.Render("No entries yet."))
		return b.String()
	}

	headers := append([]string{"Date"}, cats...)
	headers = append(headers, ledger.TotalLabel)

	rowTotals := make(map[string]string, len(bv.Totals.Rows))
	for _, rt := range bv.Totals.Rows {
		rowTotals[rt.Date.String()] = core.FormatAmount(rt.Total)
	}

	rows := make([][]string, 0, bv.Snapshot.Len()+1)
	for _, r := range bv.Snapshot.Rows() {
		row := make([]string, 0, len(headers))
		row = append(row, r.Date.String())
		for _, c := range cats {
			cell := r.Cell(c)
			row = append(row, nullAmount(cell.Valid, cell.Decimal))
		}
		row = append(row, rowTotals[r.Date.String()])
		rows = append(rows, row)
	}

	total := make([]string, 0, len(headers))
	total = append(total, ledger.TotalLabel)
	for _, c := range cats {
		ct, _ := bv.Totals.Column(c)
		total = append(total, nullAmount(!ct.IsNull(), ct.Total))
	}
	total = append(total, core.FormatAmount(bv.Totals.Grand))
	rows = append(rows, total)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	b.WriteString(t.String())

	for _, s := range bv.Shares {
		fmt.Fprintf(&b, "\n%s %s%%", s.Category, s.Percent().StringFixed(2))
	}
	return b.String()
}

func renderRemaining(d decimal.Decimal) string {
	line := "Remaining after expenses: " + core.FormatAmount(d)
	if d.IsNegative() {
		return overspentStyle.Render(line)
	}
	return remainingStyle.Render(line)
}

func nullAmount(valid bool, d decimal.Decimal) string {
	if !valid {
		return ""
	}
	return core.FormatAmount(d)
}

func bookHeading(b core.Book) string {
	if b == core.Income {
		return "Income"
	}
	return "Expenses"
}
