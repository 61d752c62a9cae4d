package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"datahandler/internal/extent"
	"datahandler/internal/services"
)

// extentFlags collects the spatial and temporal parameters shared by submit,
// status, and query.
type extentFlags struct {
	tiles   []string
	spatial string
	dates   string
	days    string
}

func (f *extentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.tiles, "tiles", nil, "Tiles to cover (comma separated)")
	cmd.Flags().StringVar(&f.spatial, "spatial", "", `Spatial spec as JSON, e.g. {"kind":"features","features":[...]}`)
	cmd.Flags().StringVar(&f.dates, "dates", "", "Date or inclusive range a,b (YYYY, YYYY-DDD, or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.days, "days", "", "Optional inclusive day-of-year window a,b")
}

func (f *extentFlags) specs() (extent.SpatialSpec, extent.TemporalSpec, error) {
	var spatial extent.SpatialSpec
	switch {
	case f.spatial != "" && len(f.tiles) > 0:
		return spatial, extent.TemporalSpec{}, usageError("use either --tiles or --spatial, not both")
	case f.spatial != "":
		parsed, err := extent.ParseSpatial(f.spatial)
		if err != nil {
			return spatial, extent.TemporalSpec{}, err
		}
		spatial = parsed
	case len(f.tiles) > 0:
		spatial = extent.Tiles(f.tiles...)
	default:
		return spatial, extent.TemporalSpec{}, usageError("--tiles or --spatial is required")
	}
	if strings.TrimSpace(f.dates) == "" {
		return spatial, extent.TemporalSpec{}, usageError("--dates is required")
	}
	temporal := extent.TemporalSpec{Dates: f.dates, Days: f.days}
	if _, err := temporal.Resolve(); err != nil {
		return spatial, temporal, err
	}
	return spatial, temporal, nil
}

func usageError(msg string) error {
	return services.Wrap(services.ErrValidation, "cli", "", msg, nil)
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, usageError(fmt.Sprintf("invalid id %q", value))
	}
	return id, nil
}

func formatCount(n int) string {
	return strconv.Itoa(n)
}
