package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"datahandler/internal/batchqueue/kafka"
	"datahandler/internal/bootstrap"
	"datahandler/internal/telemetry"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume task batches from the kafka batch queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger := ctx.cliLogger()
			shutdown, err := telemetry.Init(signalCtx, cfg.Telemetry, "worker", logger)
			if err != nil {
				return err
			}
			defer shutdown(cmd.Context())

			return ctx.withComponents(signalCtx, bootstrap.Options{WithoutQueue: true}, func(c *bootstrap.Components) error {
				worker, err := kafka.NewWorker(cfg.Queue.Kafka, c.Runner, logger)
				if err != nil {
					return err
				}
				defer worker.Close()
				return worker.Run(signalCtx)
			})
		},
	}
}
