package scheduler

import (
	"context"

	"datahandler/internal/batchqueue"
	"datahandler/internal/inventory"
	"datahandler/internal/logging"
)

// ScheduleProcess claims requested Products whose dependencies are all
// complete and submits them in unchained batches of ProcessBatchSize.
// Products without dependencies are eligible.
func (s *Scheduler) ScheduleProcess(ctx context.Context) (outcomes []batchqueue.Outcome, err error) {
	ctx, span, logger := s.phase(ctx, PhaseProcess)
	defer func() { endSpan(span, err) }()

	err = s.store.WithTx(ctx, func(tx *inventory.Tx) error {
		products, err := tx.LockEligibleProducts(ctx)
		if err != nil {
			return err
		}
		if len(products) == 0 {
			return nil
		}
		ids := make([]int64, len(products))
		for i, p := range products {
			ids[i] = p.ID
		}
		outcomes, err = s.submit(ctx, batchqueue.KindProcess, idArgs(ids), s.cfg.ProcessBatchSize, false)
		if err != nil {
			return err
		}
		for _, outcome := range outcomes {
			if err := tx.MarkProductsScheduled(ctx, taskIDs(outcome), outcome.BatchID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logging.ErrorWithContext(logger, "process scheduling failed", "schedule_process_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "eligible products stay requested; check the batch queue"),
		)
		return nil, err
	}
	if len(outcomes) > 0 {
		logger.Info("process batches submitted", logging.Int("batches", len(outcomes)))
	}
	return outcomes, nil
}
