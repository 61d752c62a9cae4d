package scheduler

import (
	"context"

	"datahandler/internal/batchqueue"
	"datahandler/internal/inventory"
	"datahandler/internal/logging"
	"datahandler/internal/services"
)

// FetchResult reports what one ScheduleFetch call did for a driver.
type FetchResult struct {
	// Busy is set when a fetch batch for the driver was still alive; nothing
	// else happened.
	Busy     bool
	Retried  []int64
	GaveUp   []int64
	Outcomes []batchqueue.Outcome
}

// Claimed returns the number of assets submitted.
func (r FetchResult) Claimed() int {
	n := 0
	for _, o := range r.Outcomes {
		n += len(o.Tasks)
	}
	return n
}

// ScheduleFetch keeps at most one live fetch batch per driver. When every
// earlier batch is dead it requeues or gives up on the assets they left
// active, then claims up to FetchBatches x FetchBatchSize requested assets
// into chained batches.
func (s *Scheduler) ScheduleFetch(ctx context.Context, driver string) (result FetchResult, err error) {
	ctx = services.WithDriver(ctx, driver)
	ctx, span, logger := s.phase(ctx, PhaseFetch)
	defer func() { endSpan(span, err) }()

	err = s.store.WithTx(ctx, func(tx *inventory.Tx) error {
		active, err := tx.LockActiveAssets(ctx, driver)
		if err != nil {
			return err
		}
		checked := make(map[string]struct{})
		for _, asset := range active {
			if _, done := checked[asset.SchedID]; done {
				continue
			}
			checked[asset.SchedID] = struct{}{}
			alive, err := s.queue.IsAlive(ctx, asset.SchedID)
			if err != nil {
				return err
			}
			if alive {
				result.Busy = true
				return nil
			}
		}
		for _, asset := range active {
			if asset.RetryCount >= s.cfg.MaxFetchRetries {
				if err := tx.SetAssetStatus(ctx, asset.ID, inventory.StatusFailed); err != nil {
					return err
				}
				result.GaveUp = append(result.GaveUp, asset.ID)
				logging.WarnWithContext(logger, "asset fetch given up", "fetch_give_up",
					logging.Int64("asset_id", asset.ID),
					logging.String(logging.FieldSchedID, asset.SchedID),
					logging.Int("retries", asset.RetryCount),
					logging.String(logging.FieldImpact, "asset marked failed; dependent products will not run"),
					logging.String(logging.FieldErrorHint, "force-request the asset once the source recovers"),
				)
				continue
			}
			if err := tx.RequeueAsset(ctx, asset.ID); err != nil {
				return err
			}
			result.Retried = append(result.Retried, asset.ID)
			logger.Info("asset fetch retried",
				logging.Int64("asset_id", asset.ID),
				logging.String(logging.FieldSchedID, asset.SchedID),
				logging.Int("retries", asset.RetryCount+1),
			)
		}
		return nil
	})
	if err != nil || result.Busy {
		if result.Busy {
			logger.Debug("fetch batch still running; skipping driver this cycle")
		}
		return result, err
	}

	err = s.store.WithTx(ctx, func(tx *inventory.Tx) error {
		limit := s.cfg.FetchBatches * s.cfg.FetchBatchSize
		assets, err := tx.LockRequestedAssets(ctx, driver, limit)
		if err != nil {
			return err
		}
		if len(assets) == 0 {
			return nil
		}
		ids := make([]int64, len(assets))
		for i, asset := range assets {
			ids[i] = asset.ID
		}
		outcomes, err := s.submit(ctx, batchqueue.KindFetch, idArgs(ids), s.cfg.FetchBatchSize, true)
		if err != nil {
			return err
		}
		for _, outcome := range outcomes {
			if err := tx.MarkAssetsScheduled(ctx, taskIDs(outcome), outcome.BatchID); err != nil {
				return err
			}
		}
		result.Outcomes = outcomes
		return nil
	})
	if err != nil {
		result.Outcomes = nil
		logging.ErrorWithContext(logger, "fetch scheduling failed", "schedule_fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "requested assets stay requested; check the batch queue"),
		)
		return result, err
	}
	if n := result.Claimed(); n > 0 {
		logger.Info("fetch batches submitted",
			logging.Int("assets", n),
			logging.Int("batches", len(result.Outcomes)),
		)
	}
	return result, nil
}
