// Package drivers defines the data-source collaborator the scheduler and
// workers talk to, plus a registry that builds drivers from configuration.
package drivers

import (
	"context"
	"time"

	"datahandler/internal/extent"
	"datahandler/internal/inventory"
)

// QueryOptions are the flags derived from a query type.
//
// With neither Force nor Update set the query only reports what is missing
// locally, consulting Inventory when it is non-nil.
type QueryOptions struct {
	Update    bool
	Force     bool
	Grouped   bool
	Inventory Inventory
}

// MissingOnly reports whether work already complete in the inventory should
// be left out of the results.
func (o QueryOptions) MissingOnly() bool {
	return !o.Force && !o.Update && o.Inventory != nil
}

// Inventory is the read side of the work-item store a driver consults.
type Inventory interface {
	FindAsset(ctx context.Context, key inventory.AssetKey) (*inventory.Asset, error)
	FindProduct(ctx context.Context, key inventory.ProductKey) (*inventory.Product, error)
}

// AssetDescriptor describes one remotely available input file.
type AssetDescriptor struct {
	AssetType string
	Tile      string
	Date      time.Time
	Sensor    string
	Name      string
}

// QueryResult lists the assets a (product, tile, date) needs.
type QueryResult struct {
	Product string
	Tile    string
	Date    time.Time
	Sensor  string
	Assets  []AssetDescriptor
}

// Driver is a named data-source integration.
type Driver interface {
	Name() string
	Products() []string
	// QueryService reports, per (product, tile, date) inside the bounds, the
	// assets available remotely.
	QueryService(ctx context.Context, products, tiles []string, temporal extent.Temporal, opts QueryOptions) ([]QueryResult, error)
	// Fetch downloads one asset.
	Fetch(ctx context.Context, asset *inventory.Asset) error
	// Process derives one product from its complete dependencies.
	Process(ctx context.Context, product *inventory.Product, deps []*inventory.Asset) error
	// Aggregate exports and aggregates a job's products over a slice of its extents.
	Aggregate(ctx context.Context, job *inventory.Job, extents []extent.Extent) error
}
