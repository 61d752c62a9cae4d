package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"datahandler/internal/daemon"
	"datahandler/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var development bool

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduler loop in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var level string
			if ctx.logLevelFlag != nil {
				level = strings.TrimSpace(*ctx.logLevelFlag)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: level, Development: development})
		},
	}
	daemonCmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	return daemonCmd
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's status over its HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := daemon.NewClient(cfg.Daemon.APIBind, cfg.Daemon.APIToken)
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if status.Running {
				fmt.Fprintln(out, renderStatusLine("Daemon", toneRunning, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Daemon", toneWaiting, "Not running", colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Store", toneNeutral, status.StoreBackend, colorize))
			fmt.Fprintln(out, renderStatusLine("Queue", toneNeutral, status.QueueBackend, colorize))
			fmt.Fprintln(out, renderStatusLine("Drivers", toneNeutral, strings.Join(status.Drivers, ", "), colorize))
			fmt.Fprintln(out, renderStatusLine("Cycles", toneNeutral, fmt.Sprintf("%d", status.Cycles), colorize))
			if last := status.LastCycle; last != nil {
				kind, msg := toneDone, fmt.Sprintf("%s at %s (%dms)", last.CycleID, last.StartedAt, last.DurationMillis)
				if last.Error != "" {
					kind, msg = toneFailed, last.Error
				}
				fmt.Fprintln(out, renderStatusLine("Last cycle", kind, msg, colorize))
			}

			statuses := make([]string, 0, len(status.Jobs))
			for s := range status.Jobs {
				statuses = append(statuses, s)
			}
			sort.Strings(statuses)
			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				rows = append(rows, []string{statusLabel(s), formatCount(status.Jobs[s])})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Job Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}
