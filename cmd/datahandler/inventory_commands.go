package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"datahandler/internal/api"
	"datahandler/internal/bootstrap"
	"datahandler/internal/inventory"
	"datahandler/internal/services"
)

type inventoryFilters struct {
	driver   string
	statuses []string
	schedID  string
	limit    int
	asJSON   bool
}

func (f *inventoryFilters) register(cmd *cobra.Command, withDriver bool) {
	if withDriver {
		cmd.Flags().StringVar(&f.driver, "driver", "", "Only rows of this driver")
		cmd.Flags().StringVar(&f.schedID, "sched-id", "", "Only rows claimed by this batch")
		cmd.Flags().IntVar(&f.limit, "limit", 0, "Maximum rows to list (0 lists all)")
	}
	cmd.Flags().StringSliceVar(&f.statuses, "status", nil, "Only rows in these statuses")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print rows as JSON")
}

func (f *inventoryFilters) workStatuses() ([]inventory.WorkStatus, error) {
	out := make([]inventory.WorkStatus, 0, len(f.statuses))
	for _, value := range f.statuses {
		status, ok := inventory.ParseWorkStatus(value)
		if !ok {
			return nil, usageError(fmt.Sprintf("unknown status %q", value))
		}
		out = append(out, status)
	}
	return out, nil
}

func newInventoryCommand(ctx *commandContext) *cobra.Command {
	inventoryCmd := &cobra.Command{
		Use:     "inventory",
		Aliases: []string{"inv"},
		Short:   "Inspect jobs, assets, products, and aggregation chunks",
	}
	inventoryCmd.AddCommand(newInventoryJobsCommand(ctx))
	inventoryCmd.AddCommand(newInventoryAssetsCommand(ctx))
	inventoryCmd.AddCommand(newInventoryProductsCommand(ctx))
	inventoryCmd.AddCommand(newInventoryChunksCommand(ctx))
	inventoryCmd.AddCommand(newInventoryDepsCommand(ctx))
	return inventoryCmd
}

func newInventoryJobsCommand(ctx *commandContext) *cobra.Command {
	var filters inventoryFilters
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]inventory.JobStatus, 0, len(filters.statuses))
			for _, value := range filters.statuses {
				status, ok := inventory.ParseJobStatus(value)
				if !ok {
					return usageError(fmt.Sprintf("unknown job status %q", value))
				}
				statuses = append(statuses, status)
			}
			return ctx.withComponents(cmd.Context(), bootstrap.Options{WithoutQueue: true}, func(c *bootstrap.Components) error {
				jobs, err := c.Store.ListJobs(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				views := api.FromJobs(jobs)
				if filters.asJSON {
					return writeJSON(cmd, views)
				}
				rows := make([][]string, 0, len(views))
				for _, j := range views {
					rows = append(rows, []string{strconv.FormatInt(j.ID, 10), j.Site, j.Variable, j.Driver, j.Product, statusLabel(j.Status), j.UpdatedAt})
				}
				return printRows(cmd, []string{"ID", "Site", "Variable", "Driver", "Product", "Status", "Updated"}, rows)
			})
		},
	}
	filters.register(cmd, false)
	return cmd
}

func newInventoryAssetsCommand(ctx *commandContext) *cobra.Command {
	var filters inventoryFilters
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "List assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := filters.workStatuses()
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd.Context(), bootstrap.Options{WithoutQueue: true}, func(c *bootstrap.Components) error {
				assets, err := c.Store.ListAssets(cmd.Context(), inventory.AssetQuery{
					Driver: filters.driver, Statuses: statuses, SchedID: filters.schedID, Limit: filters.limit,
				})
				if err != nil {
					return err
				}
				views := api.FromAssets(assets)
				if filters.asJSON {
					return writeJSON(cmd, views)
				}
				return printAssets(cmd, views)
			})
		},
	}
	filters.register(cmd, true)
	return cmd
}

func newInventoryProductsCommand(ctx *commandContext) *cobra.Command {
	var filters inventoryFilters
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := filters.workStatuses()
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd.Context(), bootstrap.Options{WithoutQueue: true}, func(c *bootstrap.Components) error {
				products, err := c.Store.ListProducts(cmd.Context(), inventory.ProductQuery{
					Driver: filters.driver, Statuses: statuses, SchedID: filters.schedID, Limit: filters.limit,
				})
				if err != nil {
					return err
				}
				views := api.FromProducts(products)
				if filters.asJSON {
					return writeJSON(cmd, views)
				}
				rows := make([][]string, 0, len(views))
				for _, p := range views {
					rows = append(rows, []string{strconv.FormatInt(p.ID, 10), p.Driver, p.Product, p.Tile, p.Date, statusLabel(p.Status), p.SchedID})
				}
				return printRows(cmd, []string{"ID", "Driver", "Product", "Tile", "Date", "Status", "Sched ID"}, rows)
			})
		},
	}
	filters.register(cmd, true)
	return cmd
}

func newInventoryChunksCommand(ctx *commandContext) *cobra.Command {
	var filters inventoryFilters
	cmd := &cobra.Command{
		Use:   "chunks <job-id>",
		Short: "List a job's export-and-aggregate chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd.Context(), bootstrap.Options{WithoutQueue: true}, func(c *bootstrap.Components) error {
				chunks, err := c.Store.ListChunks(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				views := api.FromChunks(chunks)
				if filters.asJSON {
					return writeJSON(cmd, views)
				}
				rows := make([][]string, 0, len(views))
				for _, ch := range views {
					rows = append(rows, []string{
						strconv.FormatInt(ch.ID, 10),
						fmt.Sprintf("[%d, %d)", ch.Args[1], ch.Args[2]),
						statusLabel(ch.Status),
						ch.SchedID,
					})
				}
				return printRows(cmd, []string{"ID", "Extents", "Status", "Sched ID"}, rows)
			})
		},
	}
	cmd.Flags().BoolVar(&filters.asJSON, "json", false, "Print rows as JSON")
	return cmd
}

func newInventoryDepsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "deps <product-id>",
		Short: "List the assets a product depends on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd.Context(), bootstrap.Options{WithoutQueue: true}, func(c *bootstrap.Components) error {
				product, err := c.Store.GetProduct(cmd.Context(), productID)
				if err != nil {
					return err
				}
				if product == nil {
					return services.Wrap(services.ErrNotFound, "cli", "inventory deps", fmt.Sprintf("product %d", productID), nil)
				}
				deps, err := c.Store.ProductDependencies(cmd.Context(), productID)
				if err != nil {
					return err
				}
				views := api.FromAssets(deps)
				if asJSON {
					return writeJSON(cmd, views)
				}
				return printAssets(cmd, views)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print rows as JSON")
	return cmd
}

func printAssets(cmd *cobra.Command, views []api.AssetView) error {
	rows := make([][]string, 0, len(views))
	for _, a := range views {
		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10), a.Driver, a.AssetType, a.Tile, a.Date,
			statusLabel(a.Status), strconv.Itoa(a.RetryCount), a.SchedID,
		})
	}
	return printRows(cmd, []string{"ID", "Driver", "Asset Type", "Tile", "Date", "Status", "Retries", "Sched ID"}, rows)
}

func printRows(cmd *cobra.Command, headers []string, rows [][]string) error {
	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(out, "No rows")
		return nil
	}
	aligns := make([]columnAlignment, len(headers))
	aligns[0] = alignRight
	fmt.Fprintln(out, renderTable(out, headers, rows, aligns))
	return nil
}
