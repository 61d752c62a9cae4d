package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"datahandler/internal/api"
	"datahandler/internal/bootstrap"
	"datahandler/internal/daemon"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var site, variable string
	var viaDaemon, asJSON bool
	var extents extentFlags

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a job for a site, variable, and spatial/temporal extent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(variable) == "" {
				return usageError("--variable is required")
			}
			spatial, temporal, err := extents.specs()
			if err != nil {
				return err
			}
			req := api.SubmitJobRequest{Site: site, Variable: variable, Spatial: spatial, Temporal: temporal}

			var view api.JobView
			if viaDaemon {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				client, err := daemon.NewClient(cfg.Daemon.APIBind, cfg.Daemon.APIToken)
				if err != nil {
					return err
				}
				if view, err = client.SubmitJob(cmd.Context(), req); err != nil {
					return err
				}
			} else {
				err = ctx.withComponents(cmd.Context(), bootstrap.Options{WithoutQueue: true}, func(c *bootstrap.Components) error {
					job, err := c.API.SubmitJob(cmd.Context(), req.JobRequest())
					if err != nil {
						return err
					}
					view = api.FromJob(job)
					return nil
				})
				if err != nil {
					return err
				}
			}

			if asJSON {
				return writeJSON(cmd, api.JobResponse{Job: view})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %d (%s/%s, status %s)\n", view.ID, view.Driver, view.Product, view.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "Site label recorded on the job")
	cmd.Flags().StringVar(&variable, "variable", "", "Catalog variable to produce")
	cmd.Flags().BoolVar(&viaDaemon, "via-daemon", false, "Submit through the running daemon's HTTP API")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job as JSON")
	extents.register(cmd)
	return cmd
}
