package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"tally/internal/core"
	"tally/internal/importer"
	"tally/internal/log"
)

func newImportCommand(a *app) *cobra.Command {
	var description string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <workbook>",
		Short: "Record every cell of a legacy .xls or .xlsx workbook as an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			sheets, err := importer.ReadFile(path)
			if err != nil {
				return err
			}
			if description == "" {
				description = "Imported from " + filepath.Base(path)
			}

			out := cmd.OutOrStdout()
			if dryRun {
				for _, sh := range sheets {
					fmt.Fprintf(out, "%s -> %s: %d dates, %d columns",
						sh.Name, sh.Book, sh.Snapshot.Len(), len(sh.Snapshot.Categories()))
					if dates := sh.Snapshot.Dates(); len(dates) > 0 {
						fmt.Fprintf(out, " (%s to %s)", dates[0], dates[len(dates)-1])
					}
					fmt.Fprintln(out)
				}
				return nil
			}

			svc, closeLedger, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeLedger()

			res, err := importer.Import(cmd.Context(), svc, sheets, description)
			a.logger.WithComponent(log.ComponentImport).InfoContext(cmd.Context(), "Imported workbook",
				"file", path,
				"sheets", res.Sheets,
				"expenses", res.Entries[core.Expenses],
				"income", res.Entries[core.Income],
				log.FieldSuccess, err == nil)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Imported %d expense and %d income entries\n",
				res.Entries[core.Expenses], res.Entries[core.Income])
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "description stored on every imported entry")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only report what the workbook holds")
	return cmd
}
