package api

import (
	"context"
	"fmt"
	"strings"

	"datahandler/internal/drivers"
	"datahandler/internal/extent"
	"datahandler/internal/inventory"
	"datahandler/internal/logging"
	"datahandler/internal/services"
)

// QueryType selects how the driver treats already-known data.
type QueryType string

const (
	// QueryRemote re-reads the remote catalog (force).
	QueryRemote QueryType = "remote"
	// QueryMissing only reports what is not yet held locally.
	QueryMissing QueryType = "missing"
	// QueryUpdate re-reads the catalog and refreshes changed entries (update and force).
	QueryUpdate QueryType = "update"
)

// Action selects what QueryService does with the driver's answer.
type Action string

const (
	ActionGetInfo             Action = "get-info"
	ActionRequestAsset        Action = "request-asset"
	ActionForceRequestAsset   Action = "force-request-asset"
	ActionRequestProduct      Action = "request-product"
	ActionForceRequestProduct Action = "force-request-product"
)

// ParseQueryType validates a query type.
func ParseQueryType(value string) (QueryType, error) {
	switch qt := QueryType(strings.ToLower(strings.TrimSpace(value))); qt {
	case QueryRemote, QueryMissing, QueryUpdate:
		return qt, nil
	default:
		return "", services.Wrap(services.ErrNotImplemented, "api", "query service", fmt.Sprintf("query type %q", value), nil)
	}
}

// ParseAction validates an action.
func ParseAction(value string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(value))); a {
	case ActionGetInfo, ActionRequestAsset, ActionForceRequestAsset, ActionRequestProduct, ActionForceRequestProduct:
		return a, nil
	default:
		return "", services.Wrap(services.ErrNotImplemented, "api", "query service", fmt.Sprintf("action %q", value), nil)
	}
}

// Options maps a query type to driver flags.
func (q QueryType) Options() drivers.QueryOptions {
	switch q {
	case QueryRemote:
		return drivers.QueryOptions{Force: true}
	case QueryUpdate:
		return drivers.QueryOptions{Force: true, Update: true}
	default:
		return drivers.QueryOptions{}
	}
}

func (a Action) force() bool {
	return a == ActionForceRequestAsset || a == ActionForceRequestProduct
}

func (a Action) requestsAssets() bool {
	return a != ActionGetInfo
}

func (a Action) requestsProducts() bool {
	return a == ActionRequestProduct || a == ActionForceRequestProduct
}

// QueryRequest carries the parameters of QueryService. An empty Products list
// means every product the driver offers.
type QueryRequest struct {
	Driver   string
	Spatial  extent.SpatialSpec
	Temporal extent.TemporalSpec
	Products []string
	Type     string
	Action   string
}

// QueryOutcome is what QueryService returns: the driver's answer and how many
// rows were newly requested.
type QueryOutcome struct {
	Items             []drivers.QueryResult
	AssetsRequested   int
	ProductsRequested int
}

// QueryService asks the driver what is available and applies the action.
// Parameter errors are reported before anything is written; registrations
// commit together or not at all.
func (s *Service) QueryService(ctx context.Context, req QueryRequest) (*QueryOutcome, error) {
	queryType, err := ParseQueryType(req.Type)
	if err != nil {
		return nil, err
	}
	action, err := ParseAction(req.Action)
	if err != nil {
		return nil, err
	}
	driver, err := s.drivers.Get(req.Driver)
	if err != nil {
		return nil, err
	}
	spatial, err := req.Spatial.Resolve()
	if err != nil {
		return nil, err
	}
	temporal, err := req.Temporal.Resolve()
	if err != nil {
		return nil, err
	}
	products := req.Products
	if len(products) == 0 {
		products = driver.Products()
	}

	opts := queryType.Options()
	opts.Grouped = true
	opts.Inventory = s.store
	items, err := driver.QueryService(ctx, products, spatial.Tiles, temporal, opts)
	if err != nil {
		return nil, fmt.Errorf("driver %s query: %w", driver.Name(), err)
	}
	outcome := &QueryOutcome{Items: items}
	if !action.requestsAssets() {
		return outcome, nil
	}

	force := action.force()
	err = s.store.WithTx(ctx, func(tx *inventory.Tx) error {
		for _, item := range items {
			assetIDs := make([]int64, 0, len(item.Assets))
			for _, desc := range item.Assets {
				reg, err := tx.RegisterAsset(ctx, inventory.Asset{
					Driver:    driver.Name(),
					AssetType: desc.AssetType,
					Tile:      desc.Tile,
					Date:      desc.Date,
					Sensor:    desc.Sensor,
					Name:      desc.Name,
				}, force)
				if err != nil {
					return err
				}
				if reg.Requested {
					outcome.AssetsRequested++
				}
				assetIDs = append(assetIDs, reg.ID)
			}
			if !action.requestsProducts() {
				continue
			}
			reg, err := tx.RegisterProduct(ctx, inventory.Product{
				Driver:  driver.Name(),
				Product: item.Product,
				Tile:    item.Tile,
				Date:    item.Date,
				Sensor:  item.Sensor,
				Name:    fmt.Sprintf("%s_%s_%s", item.Tile, inventory.FormatDate(item.Date), item.Product),
			}, assetIDs, force)
			if err != nil {
				return err
			}
			if reg.Requested {
				outcome.ProductsRequested++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query service %s: %w", action, err)
	}

	s.logger.Info("query service applied",
		logging.String(logging.FieldDriver, driver.Name()),
		logging.String("query_type", string(queryType)),
		logging.String("action", string(action)),
		logging.Int("items", len(items)),
		logging.Int("assets_requested", outcome.AssetsRequested),
		logging.Int("products_requested", outcome.ProductsRequested),
	)
	return outcome, nil
}
