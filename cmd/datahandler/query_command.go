package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"datahandler/internal/api"
	"datahandler/internal/bootstrap"
)

type queryOutput struct {
	Items             []api.QueryItem `json:"items"`
	AssetsRequested   int             `json:"assetsRequested"`
	ProductsRequested int             `json:"productsRequested"`
}

func newQueryCommand(ctx *commandContext) *cobra.Command {
	var driver, queryType, action string
	var products []string
	var asJSON bool
	var extents extentFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Ask a driver what is available and optionally request it",
		Long: "Query a driver's catalog inside an extent.\n\n" +
			"--type is one of remote, missing, update. --action is one of get-info,\n" +
			"request-asset, force-request-asset, request-product, force-request-product.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(driver) == "" {
				return usageError("--driver is required")
			}
			spatial, temporal, err := extents.specs()
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd.Context(), bootstrap.Options{WithoutQueue: true}, func(c *bootstrap.Components) error {
				outcome, err := c.API.QueryService(cmd.Context(), api.QueryRequest{
					Driver:   driver,
					Spatial:  spatial,
					Temporal: temporal,
					Products: products,
					Type:     queryType,
					Action:   action,
				})
				if err != nil {
					return err
				}
				result := queryOutput{
					Items:             api.FromQueryResults(outcome.Items),
					AssetsRequested:   outcome.AssetsRequested,
					ProductsRequested: outcome.ProductsRequested,
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				return renderQuery(cmd, result)
			})
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "Driver name")
	cmd.Flags().StringSliceVar(&products, "products", nil, "Products to query (default: all products of the driver)")
	cmd.Flags().StringVar(&queryType, "type", string(api.QueryMissing), "Query type")
	cmd.Flags().StringVar(&action, "action", string(api.ActionGetInfo), "Action to take on the results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	extents.register(cmd)
	return cmd
}

func renderQuery(cmd *cobra.Command, result queryOutput) error {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(result.Items))
	for _, item := range result.Items {
		assets := make([]string, 0, len(item.Assets))
		for _, asset := range item.Assets {
			assets = append(assets, asset.AssetType)
		}
		rows = append(rows, []string{item.Product, item.Tile, item.Date, strings.Join(assets, ", ")})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(out, []string{"Product", "Tile", "Date", "Assets"}, rows, nil))
	}
	fmt.Fprintf(out, "%d result(s); requested %d asset(s) and %d product(s)\n",
		len(result.Items), result.AssetsRequested, result.ProductsRequested)
	return nil
}
