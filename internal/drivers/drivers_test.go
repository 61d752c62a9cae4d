package drivers_test

import (
	"context"
	"errors"
	"testing"

	"datahandler/internal/drivers"
	"datahandler/internal/extent"
	"datahandler/internal/inventory"
	"datahandler/internal/services"
	"datahandler/internal/testsupport"
)

func TestRegistryBuildsStaticDrivers(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDriver("landsat", map[string][]string{"sr": {"B4", "B5"}}))
	reg, err := drivers.NewRegistry(cfg, nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if names := reg.Names(); len(names) != 2 || names[0] != "modis" || names[1] != "landsat" {
		t.Fatalf("unexpected driver order: %v", names)
	}
	if _, err := reg.Get("sentinel"); !errors.Is(err, services.ErrUnknownDriver) {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}

func TestRegistryRejectsUnknownKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Drivers[0].Kind = "hdf"
	if _, err := drivers.NewRegistry(cfg, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestStaticQueryServiceEnumeratesCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDriver("landsat", map[string][]string{"sr": {"B4", "B5"}}))
	reg, err := drivers.NewRegistry(cfg, nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	driver, err := reg.Get("landsat")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	temporal, err := extent.TemporalSpec{Dates: "2020-01-01,2020-01-03"}.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	results, err := driver.QueryService(context.Background(), []string{"sr"}, []string{"t1", "t2"}, temporal, drivers.QueryOptions{})
	if err != nil {
		t.Fatalf("QueryService failed: %v", err)
	}
	if len(results) != 6 {
		t.Fatalf("expected 2 tiles x 3 dates = 6 results, got %d", len(results))
	}
	for _, r := range results {
		if len(r.Assets) != 2 {
			t.Fatalf("expected 2 assets per result, got %+v", r)
		}
	}

	if _, err := driver.QueryService(context.Background(), []string{"ndvi"}, []string{"t1"}, temporal, drivers.QueryOptions{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown product, got %v", err)
	}
}

// completeInventory reports every asset of one type and one product date as complete.
type completeInventory struct {
	assetType string
	date      string
}

func (c completeInventory) FindAsset(_ context.Context, key inventory.AssetKey) (*inventory.Asset, error) {
	if key.AssetType != c.assetType {
		return nil, nil
	}
	return &inventory.Asset{Status: inventory.StatusComplete}, nil
}

func (c completeInventory) FindProduct(_ context.Context, key inventory.ProductKey) (*inventory.Product, error) {
	if inventory.FormatDate(key.Date) != c.date {
		return &inventory.Product{Status: inventory.StatusInProgress}, nil
	}
	return &inventory.Product{Status: inventory.StatusComplete}, nil
}

func TestStaticQueryServiceMissingOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDriver("landsat", map[string][]string{"sr": {"B4", "B5"}}))
	reg, err := drivers.NewRegistry(cfg, nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	driver, _ := reg.Get("landsat")
	temporal, err := extent.TemporalSpec{Dates: "2020-01-01,2020-01-03"}.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	inv := completeInventory{assetType: "B4", date: "2020-01-02"}

	results, err := driver.QueryService(context.Background(), []string{"sr"}, []string{"t1"}, temporal, drivers.QueryOptions{Inventory: inv})
	if err != nil {
		t.Fatalf("QueryService failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected the complete product date skipped, got %d results", len(results))
	}
	for _, r := range results {
		if len(r.Assets) != 1 || r.Assets[0].AssetType != "B5" {
			t.Fatalf("expected only the unfetched asset, got %+v", r.Assets)
		}
	}

	for _, opts := range []drivers.QueryOptions{{Force: true, Inventory: inv}, {Force: true, Update: true, Inventory: inv}} {
		results, err := driver.QueryService(context.Background(), []string{"sr"}, []string{"t1"}, temporal, opts)
		if err != nil {
			t.Fatalf("QueryService failed: %v", err)
		}
		if len(results) != 3 || len(results[0].Assets) != 2 {
			t.Fatalf("expected the full catalog with %+v, got %d results", opts, len(results))
		}
	}
}
