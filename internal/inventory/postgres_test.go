package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"datahandler/internal/inventory"
	"datahandler/internal/testsupport"
)

func TestPostgresStoreClaimsAndCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPostgres(testsupport.PostgresDSN(t)))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	require.Equal(t, "postgres", store.Backend())

	date, err := inventory.ParseDate("2020-01-01")
	require.NoError(t, err)

	assetReg, err := store.RegisterAsset(ctx, inventory.Asset{Driver: "modis", AssetType: "MOD09Q1", Tile: "h01v01", Date: date}, false)
	require.NoError(t, err)
	require.True(t, assetReg.Created)

	productReg, err := store.RegisterProduct(ctx, inventory.Product{Driver: "modis", Product: "ndvi", Tile: "h01v01", Date: date}, []int64{assetReg.ID}, false)
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx *inventory.Tx) error {
		assets, err := tx.LockRequestedAssets(ctx, "modis", 10)
		if err != nil {
			return err
		}
		require.Len(t, assets, 1)
		return tx.MarkAssetsScheduled(ctx, []int64{assets[0].ID}, "batch-1")
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx *inventory.Tx) error {
		products, err := tx.LockEligibleProducts(ctx)
		require.Empty(t, products)
		return err
	})
	require.NoError(t, err)

	require.NoError(t, store.SetAssetStatus(ctx, assetReg.ID, inventory.StatusComplete))

	err = store.WithTx(ctx, func(tx *inventory.Tx) error {
		products, err := tx.LockEligibleProducts(ctx)
		require.Len(t, products, 1)
		require.Equal(t, productReg.ID, products[0].ID)
		return err
	})
	require.NoError(t, err)

	counts, err := store.CountProducts(ctx, inventory.ProductFilter{Driver: "modis", Products: []string{"ndvi"}, Tiles: []string{"h01v01"}})
	require.NoError(t, err)
	require.Equal(t, 1, counts[inventory.StatusRequested])
	require.Len(t, counts, len(inventory.AllWorkStatuses()))
}
