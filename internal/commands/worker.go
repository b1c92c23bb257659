package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tally/internal/amqp"
	"tally/internal/backend"
	"tally/internal/cli"
	"tally/internal/log"
	"tally/internal/worker"
)

func newWorkerCommand(a *app) *cobra.Command {
	var interval, skew time.Duration

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Mirror ledger changes into the Google Sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.ValidateMirror(); err != nil {
				return err
			}

			ctx, stop := cli.SignalContext(cmd.Context())
			defer stop()

			logger := a.logger.WithComponent(log.ComponentWorker)

			bc, err := backend.FromAppConfig(a.cfg)
			if err != nil {
				return err
			}
			factory := backend.NewFactory(logger.Logger)

			primary, err := factory.CreateBackend(ctx, bc)
			if err != nil {
				return err
			}
			defer primary.Close()

			mirror, err := factory.CreateMirror(ctx, bc)
			if err != nil {
				return err
			}

			client, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue)
			if err != nil {
				return fmt.Errorf("connect to AMQP: %w", err)
			}
			defer client.Close()

			logger.InfoContext(ctx, "Starting sync worker",
				log.FieldBackend, a.cfg.DataBackend,
				"queue", a.cfg.AMQPQueue,
				"interval", interval)

			w := worker.NewSyncWorker(primary.Backend, mirror, a.cfg.StoreTimeout)
			w.SetClockSkew(skew)
			err = w.Run(ctx, client, interval)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			logger.InfoContext(context.Background(), "Sync worker stopped", log.FieldOperation, log.OpShutdown)
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "full resync period, 0 to disable")
	cmd.Flags().DurationVar(&skew, "clock-skew", worker.DefaultClockSkew, "how far web and worker clocks may disagree")
	return cmd
}
