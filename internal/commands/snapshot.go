package commands

import (
	"fmt"
	"io"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tally/internal/core"
	"tally/internal/services"
)

type snapshotDoc struct {
	Backend   string    `yaml:"backend"`
	Remaining string    `yaml:"remaining"`
	Books     []bookDoc `yaml:"books"`
}

type bookDoc struct {
	Book       core.Book         `yaml:"book"`
	Categories []string          `yaml:"categories"`
	Rows       []rowDoc          `yaml:"rows"`
	Totals     map[string]string `yaml:"totals,omitempty"`
	Grand      string            `yaml:"grand"`
}

// rowDoc lists only written cells; a missing key is a null cell.
type rowDoc struct {
	Date  string            `yaml:"date"`
	Cells map[string]string `yaml:"cells,omitempty"`
}

func newSnapshotCommand(a *app) *cobra.Command {
	var output string
	var color bool

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Dump the consolidated books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "yaml" && output != "pp" {
				return &core.ValidationError{Field: "output", Reason: "expected yaml or pp"}
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
			return writeSnapshot(cmd.OutOrStdout(), newSnapshotDoc(v), output, color)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "yaml or pp")
	cmd.Flags().BoolVar(&color, "color", false, "colorize pp output")
	return cmd
}

func newSnapshotDoc(v services.View) snapshotDoc {
	doc := snapshotDoc{
		Backend:   v.Backend,
		Remaining: core.FormatAmount(v.Remaining),
	}
	for _, bv := range []services.BookView{v.Expenses, v.Income} {
		bd := bookDoc{
			Book:       bv.Book,
			Categories: bv.Snapshot.Categories(),
			Grand:      core.FormatAmount(bv.Totals.Grand),
		}
		for _, r := range bv.Snapshot.Rows() {
			rd := rowDoc{Date: r.Date.String()}
			for _, c := range bd.Categories {
				if cell := r.Cell(c); cell.Valid {
					if rd.Cells == nil {
						rd.Cells = map[string]string{}
					}
					rd.Cells[c] = core.FormatAmount(cell.Decimal)
				}
			}
			bd.Rows = append(bd.Rows, rd)
		}
		for _, ct := range bv.Totals.Columns {
			if ct.IsNull() {
				continue
			}
			if bd.Totals == nil {
				bd.Totals = map[string]string{}
			}
			bd.Totals[ct.Category] = core.FormatAmount(ct.Total)
		}
		doc.Books = append(doc.Books, bd)
	}
	return doc
}

func writeSnapshot(w io.Writer, doc snapshotDoc, output string, color bool) error {
	if output == "pp" {
		printer := pp.New()
		printer.SetColoringEnabled(color)
		_, err := printer.Fprintln(w, doc)
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return enc.Close()
}
