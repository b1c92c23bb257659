package commands

import (
	"time"

	"github.com/spf13/cobra"

	"tally/internal/cache"
	"tally/internal/cli"
	apphttp "tally/internal/http"
	"tally/internal/log"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := cli.SignalContext(cmd.Context())
			defer stop()

			svc, closeLedger, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			defer closeLedger()

			caches := cache.NewManager()
			caches.Register(svc.ViewCache())
			caches.StartCleanup(ctx, time.Minute)
			defer caches.Stop()

			addr := ":" + a.cfg.Port
			a.logger.InfoContext(ctx, "Starting tally",
				log.FieldOperation, log.OpStartup,
				log.FieldBackend, a.cfg.DataBackend,
				"addr", addr)

			srv := apphttp.NewServer(addr, svc, apphttp.Options{Logger: a.logger})
			if err := srv.Run(ctx); err != nil {
				return err
			}

			a.logger.InfoContext(ctx, "Server stopped", log.FieldOperation, log.OpShutdown)
			return nil
		},
	}
}
