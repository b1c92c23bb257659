package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tally/internal/core"
	"tally/internal/export"
	"tally/internal/log"
)

func newExportCommand(a *app) *cobra.Command {
	var (
		bookFlag   string
		formatFlag string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the entries of a book as csv or xlsx",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			book, err := core.ParseBook(bookFlag)
			if err != nil {
				return err
			}
			format, err := export.ParseFormat(formatFlag)
			if err != nil {
				return err
			}

			svc, closeLedger, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeLedger()

			entries, err := svc.Export(cmd.Context(), book)
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = format.FileName(book, time.Now())
			}

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create %s: %w", outPath, err)
				}
				defer f.Close()
				w = f
			}

			if err := export.Write(w, format, book, entries); err != nil {
				return err
			}

			a.logger.WithComponent(log.ComponentExport).InfoContext(cmd.Context(), "Exported book",
				log.FieldBook, book,
				"format", format,
				"entries", len(entries),
				"out", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&bookFlag, "book", "expenses", "expenses or income")
	cmd.Flags().StringVar(&formatFlag, "format", "csv", "csv or xlsx")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file, - for stdout (default <book>_<date>.<ext>)")
	return cmd
}
