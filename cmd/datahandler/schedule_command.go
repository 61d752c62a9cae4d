package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"datahandler/internal/batchqueue"
	"datahandler/internal/bootstrap"
	"datahandler/internal/logging"
	"datahandler/internal/scheduler"
)

func newScheduleCommand(ctx *commandContext) *cobra.Command {
	var cycles int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run scheduling cycles (query, fetch, process, export and aggregate)",
		Long: "Run one scheduling cycle and print what each phase submitted. Finding no\n" +
			"work is not an error. With the local queue backend the command waits for\n" +
			"the batches it submitted before exiting; --cycles repeats until a cycle\n" +
			"finds nothing to do.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cycles <= 0 {
				return usageError("--cycles must be positive")
			}
			return ctx.withComponents(cmd.Context(), bootstrap.Options{}, func(c *bootstrap.Components) error {
				var (
					summaries []scheduler.Summary
					runErr    error
				)
				for i := 0; i < cycles; i++ {
					summary, err := c.Scheduler.RunCycle(cmd.Context())
					summaries = append(summaries, summary)
					if c.Local != nil {
						if waitErr := c.Local.Wait(cmd.Context()); waitErr != nil {
							err = errors.Join(err, waitErr)
						}
					}
					if err != nil {
						runErr = err
						break
					}
					if summary.Idle() {
						break
					}
				}
				ctx.cliLogger().Debug("schedule finished", logging.Int("cycles", len(summaries)))
				return reportCycles(cmd, summaries, asJSON, runErr)
			})
		},
	}
	cmd.Flags().IntVar(&cycles, "cycles", 1, "Maximum number of cycles to run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print cycle summaries as JSON")
	return cmd
}

// reportCycles prints every summary collected, including the one for a cycle
// that failed part way, before returning runErr.
func reportCycles(cmd *cobra.Command, summaries []scheduler.Summary, asJSON bool, runErr error) error {
	if asJSON {
		if err := writeJSON(cmd, summaries); err != nil {
			return errors.Join(runErr, err)
		}
		return runErr
	}
	out := cmd.OutOrStdout()
	for _, summary := range summaries {
		renderSummary(out, summary)
	}
	return runErr
}

func renderSummary(out io.Writer, summary scheduler.Summary) {
	colorize := shouldColorize(out)
	for _, line := range renderCycleHeader(summary.CycleID, summary.Duration, colorize) {
		fmt.Fprintln(out, line)
	}
	if summary.Idle() {
		fmt.Fprintln(out, renderStatusLine("Result", toneNeutral, "no work found", colorize))
		return
	}

	rows := [][]string{
		{"query", strconv.Itoa(len(summary.Query)), strconv.Itoa(countTasks(summary.Query)), ""},
	}
	drivers := make([]string, 0, len(summary.Fetch))
	for driver := range summary.Fetch {
		drivers = append(drivers, driver)
	}
	sort.Strings(drivers)
	for _, driver := range drivers {
		result := summary.Fetch[driver]
		var notes []string
		if result.Busy {
			notes = append(notes, "batch in flight")
		}
		if len(result.Retried) > 0 {
			notes = append(notes, fmt.Sprintf("%d requeued", len(result.Retried)))
		}
		if len(result.GaveUp) > 0 {
			notes = append(notes, fmt.Sprintf("%d gave up", len(result.GaveUp)))
		}
		rows = append(rows, []string{"fetch " + driver, strconv.Itoa(len(result.Outcomes)), strconv.Itoa(result.Claimed()), strings.Join(notes, ", ")})
	}
	rows = append(rows, []string{"process", strconv.Itoa(len(summary.Process)), strconv.Itoa(countTasks(summary.Process)), ""})

	agg := summary.Aggregate
	var notes []string
	if len(agg.Started) > 0 {
		notes = append(notes, fmt.Sprintf("%d job(s) started", len(agg.Started)))
	}
	if len(agg.Completed) > 0 {
		notes = append(notes, fmt.Sprintf("%d complete", len(agg.Completed)))
	}
	if len(agg.Failed) > 0 {
		notes = append(notes, fmt.Sprintf("%d failed", len(agg.Failed)))
	}
	rows = append(rows, []string{"export_and_aggregate", strconv.Itoa(len(agg.Outcomes)), strconv.Itoa(countTasks(agg.Outcomes)), strings.Join(notes, ", ")})

	fmt.Fprintln(out, renderTable(out, []string{"Phase", "Batches", "Tasks", "Notes"}, rows, []columnAlignment{alignLeft, alignRight, alignRight, alignLeft}))
}

func countTasks(outcomes []batchqueue.Outcome) int {
	n := 0
	for _, o := range outcomes {
		n += len(o.Tasks)
	}
	return n
}
