package drivers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"datahandler/internal/config"
	"datahandler/internal/extent"
	"datahandler/internal/inventory"
	"datahandler/internal/logging"
	"datahandler/internal/services"
)

// KindStatic is the kind name of the configuration-driven driver.
const KindStatic = "static"

// Static is a driver whose catalog comes entirely from configuration: every
// product is available for every tile and date, built from a fixed list of
// asset types. Fetch, Process, and Aggregate only log.
type Static struct {
	name     string
	sensor   string
	products map[string][]string
	logger   *slog.Logger
}

// NewStatic builds a Static driver from its declaration.
func NewStatic(cfg config.Driver, logger *slog.Logger) (Driver, error) {
	if len(cfg.Products) == 0 {
		return nil, fmt.Errorf("driver %s declares no products", cfg.Name)
	}
	products := make(map[string][]string, len(cfg.Products))
	for product, assets := range cfg.Products {
		products[product] = append([]string(nil), assets...)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Static{name: cfg.Name, sensor: cfg.Sensor, products: products, logger: logger}, nil
}

func (s *Static) Name() string { return s.name }

func (s *Static) Products() []string {
	out := make([]string, 0, len(s.products))
	for p := range s.products {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// QueryService enumerates product x tile x date inside the bounds. In
// missing-only mode it drops items whose product is already complete and
// assets already fetched.
func (s *Static) QueryService(ctx context.Context, products, tiles []string, temporal extent.Temporal, opts QueryOptions) ([]QueryResult, error) {
	for _, p := range products {
		if _, ok := s.products[p]; !ok {
			return nil, services.Wrap(services.ErrValidation, "drivers", "query", fmt.Sprintf("driver %s has no product %q (have %s)", s.name, p, strings.Join(s.Products(), ", ")), nil)
		}
	}
	missingOnly := opts.MissingOnly()
	dates := temporal.Dates()
	results := make([]QueryResult, 0, len(products)*len(tiles)*len(dates))
	skipped := 0
	for _, product := range products {
		for _, tile := range tiles {
			for _, date := range dates {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				if missingOnly {
					done, err := productComplete(ctx, opts.Inventory, inventory.ProductKey{Driver: s.name, Product: product, Tile: tile, Date: date})
					if err != nil {
						return nil, err
					}
					if done {
						skipped++
						continue
					}
				}
				result := QueryResult{Product: product, Tile: tile, Date: date, Sensor: s.sensor}
				for _, assetType := range s.products[product] {
					if missingOnly {
						done, err := assetComplete(ctx, opts.Inventory, inventory.AssetKey{Driver: s.name, AssetType: assetType, Tile: tile, Date: date})
						if err != nil {
							return nil, err
						}
						if done {
							continue
						}
					}
					result.Assets = append(result.Assets, AssetDescriptor{
						AssetType: assetType,
						Tile:      tile,
						Date:      date,
						Sensor:    s.sensor,
						Name:      fmt.Sprintf("%s_%s_%s", tile, inventory.FormatDate(date), assetType),
					})
				}
				results = append(results, result)
			}
		}
	}
	s.logger.Debug("query service enumerated catalog",
		logging.Int("results", len(results)),
		logging.Int("skipped_complete", skipped),
		logging.Bool("update", opts.Update),
		logging.Bool("force", opts.Force),
	)
	return results, nil
}

func productComplete(ctx context.Context, inv Inventory, key inventory.ProductKey) (bool, error) {
	product, err := inv.FindProduct(ctx, key)
	if err != nil {
		return false, err
	}
	return product != nil && product.Status == inventory.StatusComplete, nil
}

func assetComplete(ctx context.Context, inv Inventory, key inventory.AssetKey) (bool, error) {
	asset, err := inv.FindAsset(ctx, key)
	if err != nil {
		return false, err
	}
	return asset != nil && asset.Status == inventory.StatusComplete, nil
}

func (s *Static) Fetch(_ context.Context, asset *inventory.Asset) error {
	s.logger.Info("asset fetched",
		logging.Int64("asset_id", asset.ID),
		logging.String("asset_type", asset.AssetType),
		logging.String("tile", asset.Tile),
		logging.String("date", inventory.FormatDate(asset.Date)),
	)
	return nil
}

func (s *Static) Process(_ context.Context, product *inventory.Product, deps []*inventory.Asset) error {
	s.logger.Info("product processed",
		logging.Int64("product_id", product.ID),
		logging.String("product", product.Product),
		logging.Int("dependencies", len(deps)),
	)
	return nil
}

func (s *Static) Aggregate(_ context.Context, job *inventory.Job, extents []extent.Extent) error {
	s.logger.Info("extents aggregated",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("site", job.Site),
		logging.Int("extents", len(extents)),
	)
	return nil
}
