package testsupport

import (
	"context"
	"testing"
	"time"

	"datahandler/internal/config"
	"datahandler/internal/inventory"
)

// MustOpenStore opens an inventory.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *inventory.Store {
	t.Helper()

	store, err := inventory.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("inventory.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Date parses a YYYY-MM-DD date or fails the test.
func Date(t testing.TB, value string) time.Time {
	t.Helper()

	d, err := inventory.ParseDate(value)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return d
}

// MustRegisterAsset registers a requested asset and returns its id.
func MustRegisterAsset(t testing.TB, store *inventory.Store, driver, assetType, tile, date string) int64 {
	t.Helper()

	reg, err := store.RegisterAsset(context.Background(), inventory.Asset{
		Driver:    driver,
		AssetType: assetType,
		Tile:      tile,
		Date:      Date(t, date),
	}, false)
	if err != nil {
		t.Fatalf("RegisterAsset: %v", err)
	}
	return reg.ID
}

// MustRegisterProduct registers a requested product linked to assetIDs and returns its id.
func MustRegisterProduct(t testing.TB, store *inventory.Store, driver, product, tile, date string, assetIDs ...int64) int64 {
	t.Helper()

	reg, err := store.RegisterProduct(context.Background(), inventory.Product{
		Driver:  driver,
		Product: product,
		Tile:    tile,
		Date:    Date(t, date),
	}, assetIDs, false)
	if err != nil {
		t.Fatalf("RegisterProduct: %v", err)
	}
	return reg.ID
}

// MustSetAssetStatus walks an asset through scheduled (with schedID) to status.
func MustSetAssetStatus(t testing.TB, store *inventory.Store, id int64, schedID string, status inventory.WorkStatus) {
	t.Helper()

	ctx := context.Background()
	if err := store.MarkAssetsScheduled(ctx, []int64{id}, schedID); err != nil {
		t.Fatalf("MarkAssetsScheduled: %v", err)
	}
	if status == inventory.StatusScheduled {
		return
	}
	if err := store.SetAssetStatus(ctx, id, status); err != nil {
		t.Fatalf("SetAssetStatus(%s): %v", status, err)
	}
}
