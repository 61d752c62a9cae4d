package tasks

import (
	"context"
	"fmt"

	"datahandler/internal/api"
	"datahandler/internal/inventory"
	"datahandler/internal/logging"
	"datahandler/internal/services"
)

// Fetch downloads one Asset. A failed download leaves the Asset in retry so
// the next fetch cleanup requeues it once the batch is gone.
func (r *Runner) Fetch(ctx context.Context, assetID int64) error {
	var asset *inventory.Asset
	err := awaitClaim(ctx, func() (bool, error) {
		var err error
		asset, err = r.store.GetAsset(ctx, assetID)
		return asset != nil && asset.Status == inventory.StatusRequested, err
	})
	if err != nil {
		return err
	}
	if asset == nil {
		return services.Wrap(services.ErrNotFound, "tasks", "fetch", fmt.Sprintf("asset %d", assetID), nil)
	}
	ctx = services.WithDriver(ctx, asset.Driver)
	logger := logging.WithContext(ctx, r.logger).With(logging.Int64("asset_id", assetID))
	if asset.Status != inventory.StatusScheduled && asset.Status != inventory.StatusRetry {
		logger.Debug("asset not awaiting fetch; skipping", logging.String("status", string(asset.Status)))
		return nil
	}
	driver, err := r.drivers.Get(asset.Driver)
	if err != nil {
		return err
	}
	if err := r.store.SetAssetStatus(ctx, assetID, inventory.StatusInProgress); err != nil {
		return err
	}
	if err := driver.Fetch(ctx, asset); err != nil {
		if setErr := r.store.SetAssetStatus(ctx, assetID, inventory.StatusRetry); setErr != nil {
			return fmt.Errorf("%w (marking asset retry: %v)", err, setErr)
		}
		logging.WarnWithContext(logger, "asset fetch failed", "fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "asset retried on a later cycle"),
		)
		return err
	}
	return r.store.SetAssetStatus(ctx, assetID, inventory.StatusComplete)
}

// Process derives one Product from its dependencies. A failed derivation
// marks the Product failed.
func (r *Runner) Process(ctx context.Context, productID int64) error {
	var product *inventory.Product
	err := awaitClaim(ctx, func() (bool, error) {
		var err error
		product, err = r.store.GetProduct(ctx, productID)
		return product != nil && product.Status == inventory.StatusRequested, err
	})
	if err != nil {
		return err
	}
	if product == nil {
		return services.Wrap(services.ErrNotFound, "tasks", "process", fmt.Sprintf("product %d", productID), nil)
	}
	ctx = services.WithDriver(ctx, product.Driver)
	logger := logging.WithContext(ctx, r.logger).With(logging.Int64("product_id", productID))
	if product.Status != inventory.StatusScheduled && product.Status != inventory.StatusRetry {
		logger.Debug("product not awaiting processing; skipping", logging.String("status", string(product.Status)))
		return nil
	}
	driver, err := r.drivers.Get(product.Driver)
	if err != nil {
		return err
	}
	deps, err := r.store.ProductDependencies(ctx, productID)
	if err != nil {
		return err
	}
	if err := r.store.SetProductStatus(ctx, productID, inventory.StatusInProgress); err != nil {
		return err
	}
	if err := driver.Process(ctx, product, deps); err != nil {
		if setErr := r.store.SetProductStatus(ctx, productID, inventory.StatusFailed); setErr != nil {
			return fmt.Errorf("%w (marking product failed: %v)", err, setErr)
		}
		logging.WarnWithContext(logger, "product processing failed", "process_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "product marked failed"),
			logging.String(logging.FieldErrorHint, "force-request the product to try again"),
		)
		return err
	}
	return r.store.SetProductStatus(ctx, productID, inventory.StatusComplete)
}

// ExportAndAggregate runs one chunk of a Job's aggregation over its extents
// [start, end).
func (r *Runner) ExportAndAggregate(ctx context.Context, args inventory.ChunkArgs) error {
	ctx = services.WithJobID(ctx, args[0])
	logger := logging.WithContext(ctx, r.logger).With(logging.String("chunk", inventory.EncodeChunkArgs(args)))

	var chunk *inventory.PostProcessJob
	err := awaitClaim(ctx, func() (bool, error) {
		var err error
		chunk, err = r.store.FindChunk(ctx, args)
		return chunk == nil || chunk.Status == inventory.StatusRequested, err
	})
	if err != nil {
		return err
	}
	if chunk == nil {
		return services.Wrap(services.ErrNotFound, "tasks", "export_and_aggregate", inventory.EncodeChunkArgs(args), nil)
	}
	if chunk.Status != inventory.StatusScheduled {
		logger.Debug("chunk not awaiting aggregation; skipping", logging.String("status", string(chunk.Status)))
		return nil
	}
	job, err := r.store.GetJob(ctx, args[0])
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "tasks", "export_and_aggregate", fmt.Sprintf("job %d", args[0]), nil)
	}
	if err := r.store.SetChunkStatus(ctx, chunk.ID, inventory.StatusInProgress); err != nil {
		return err
	}

	err = r.aggregate(ctx, job, args)
	if err != nil {
		if setErr := r.store.SetChunkStatus(ctx, chunk.ID, inventory.StatusFailed); setErr != nil {
			return fmt.Errorf("%w (marking chunk failed: %v)", err, setErr)
		}
		logging.WarnWithContext(logger, "aggregation chunk failed", "aggregate_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job will be marked failed"),
		)
		return err
	}
	return r.store.SetChunkStatus(ctx, chunk.ID, inventory.StatusComplete)
}

func (r *Runner) aggregate(ctx context.Context, job *inventory.Job, args inventory.ChunkArgs) error {
	driver, err := r.drivers.Get(job.Driver)
	if err != nil {
		return err
	}
	spatialSpec, _, err := api.JobSpecs(job)
	if err != nil {
		return err
	}
	spatial, err := spatialSpec.Resolve()
	if err != nil {
		return err
	}
	extents := spatial.Slice(args.Start(), args.End())
	if len(extents) == 0 {
		return services.Wrap(services.ErrValidation, "tasks", "export_and_aggregate", "chunk covers no extents", nil)
	}
	return driver.Aggregate(ctx, job, extents)
}
