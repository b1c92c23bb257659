package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tally/internal/backend"
	"tally/internal/cli"
	"tally/internal/config"
	"tally/internal/log"
	"tally/internal/services"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *log.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "tally",
		Short:   "Expense and income ledger with consolidated totals",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "path to a YAML config file")
	pf.String("port", "", "HTTP port")
	pf.String("data-backend", "", "ledger store: memory, xlsx, sheets, sqlite or mongo")
	pf.String("seed-dir", "", "directory holding seed_categories.txt and seed_sources.txt")
	pf.String("xlsx-path", "", "workbook path for the xlsx backend")
	pf.String("sqlite-db-path", "", "database path for the sqlite backend")
	pf.String("mongo-uri", "", "connection string for the mongo backend")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "text or json")

	rootCmd.AddCommand(
		newServeCommand(a),
		newWorkerCommand(a),
		newTotalsCommand(a),
		newExportCommand(a),
		newImportCommand(a),
		newSnapshotCommand(a),
	)

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cli.LoadEnvFile()

	cfg, err := config.Load(a.cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg
	a.logger = cli.SetupLogger(cfg, cmd.ErrOrStderr())
	return nil
}

// openLedger opens the configured backend and wraps it in a ledger service.
// The returned close function releases the store and the publisher.
func (a *app) openLedger(ctx context.Context) (*services.LedgerService, func(), error) {
	bc, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, nil, err
	}

	res, err := backend.NewFactory(a.logger.Logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, nil, err
	}

	svc := services.NewLedgerService(res.Backend, services.Config{
		Timeout:      a.cfg.StoreTimeout,
		ViewCacheTTL: a.cfg.ViewCacheTTL,
		Publisher:    res.Publisher,
		Logger:       a.logger.WithComponent(log.ComponentLedger),
	})

	closeFn := func() {
		if err := res.Close(); err != nil {
			a.logger.WarnContext(ctx, "Failed to close backend", log.FieldError, err)
		}
	}
	return svc, closeFn, nil
}
