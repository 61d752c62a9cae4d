package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"datahandler/internal/api"
	"datahandler/internal/bootstrap"
	"datahandler/internal/inventory"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report job and product processing status",
	}
	statusCmd.AddCommand(newJobStatusCommand(ctx))
	statusCmd.AddCommand(newProductStatusCommand(ctx))
	return statusCmd
}

func newJobStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "job <id>",
		Short: "Show a job's status and its product counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd.Context(), bootstrap.Options{WithoutQueue: true}, func(c *bootstrap.Components) error {
				result, err := c.API.JobStatus(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.JobStatusResponse{ID: id, JobStatusResult: result})
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintln(out, renderStatusLine(fmt.Sprintf("Job %d", id), jobTone(result.Status), result.Status, colorize))
				if len(result.Detail) > 0 {
					fmt.Fprintln(out, renderStatusLine("Products", progressTone(result.Detail), progressLine(result.Detail), colorize))
					fmt.Fprintln(out, countsTable(out, result.Detail))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

func newProductStatusCommand(ctx *commandContext) *cobra.Command {
	var driver string
	var products []string
	var asJSON bool
	var extents extentFlags

	cmd := &cobra.Command{
		Use:   "products",
		Short: "Count a driver's products inside an extent by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(driver) == "" {
				return usageError("--driver is required")
			}
			spatial, temporal, err := extents.specs()
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd.Context(), bootstrap.Options{WithoutQueue: true}, func(c *bootstrap.Components) error {
				counts, err := c.API.ProcessingStatus(cmd.Context(), driver, spatial, temporal, products)
				if err != nil {
					return err
				}
				detail := api.CountsMap(counts)
				if asJSON {
					return writeJSON(cmd, detail)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderStatusLine("Products", progressTone(detail), progressLine(detail), shouldColorize(out)))
				fmt.Fprintln(out, countsTable(out, detail))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "", "Driver name")
	cmd.Flags().StringSliceVar(&products, "products", nil, "Products to count (default: all products of the driver)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print counts as JSON")
	extents.register(cmd)
	return cmd
}

// countsTable renders one row of per-status counts in lifecycle order.
func countsTable(out io.Writer, detail map[string]int) string {
	statuses := inventory.AllWorkStatuses()
	headers := make([]string, 0, len(statuses)+1)
	row := make([]string, 0, len(statuses)+1)
	aligns := make([]columnAlignment, 0, len(statuses)+1)
	total := 0
	for _, status := range statuses {
		headers = append(headers, statusLabel(string(status)))
		row = append(row, formatCount(detail[string(status)]))
		aligns = append(aligns, alignRight)
		total += detail[string(status)]
	}
	headers = append(headers, "Total")
	row = append(row, formatCount(total))
	aligns = append(aligns, alignRight)
	return renderTable(out, headers, [][]string{row}, aligns)
}
