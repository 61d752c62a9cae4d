package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"datahandler/internal/batchqueue"
	"datahandler/internal/bootstrap"
	"datahandler/internal/logging"
	"datahandler/internal/telemetry"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	var chain bool

	cmd := &cobra.Command{
		Use:   "task <kind> <args>...",
		Short: "Run one batch of tasks (invoked by batch queue workers)",
		Long: "Run the tasks of one batch in this process. Each argument is one task's\n" +
			"comma-separated integer arguments; kind is query, fetch, process, or\n" +
			"export_and_aggregate. With --chain the batch stops at the first failure.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := batchqueue.ParseKind(args[0])
			if !ok {
				return usageError(fmt.Sprintf("unknown task kind %q", args[0]))
			}
			refs := make([]batchqueue.TaskRef, 0, len(args)-1)
			for i, raw := range args[1:] {
				taskArgs, err := batchqueue.ParseArgs(raw)
				if err != nil {
					return usageError(fmt.Sprintf("task %d: %v", i+1, err))
				}
				refs = append(refs, batchqueue.TaskRef{ID: fmt.Sprintf("cli-%d", i+1), Args: taskArgs})
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.cliLogger()
			shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry, "task", logger)
			if err != nil {
				return err
			}
			defer shutdown(cmd.Context())

			return ctx.withComponents(cmd.Context(), bootstrap.Options{WithoutQueue: true}, func(c *bootstrap.Components) error {
				logger.Info("running task batch",
					logging.String(logging.FieldTaskKind, string(kind)),
					logging.Int("tasks", len(refs)),
					logging.Bool("chain", chain),
				)
				if err := batchqueue.RunBatch(cmd.Context(), c.Runner, kind, refs, chain); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ran %d %s task(s): %s\n", len(refs), kind, strings.Join(args[1:], " "))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&chain, "chain", false, "Stop the batch at the first failing task")
	return cmd
}
