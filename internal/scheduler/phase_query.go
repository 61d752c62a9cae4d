package scheduler

import (
	"context"

	"datahandler/internal/batchqueue"
	"datahandler/internal/inventory"
	"datahandler/internal/logging"
)

// ScheduleQuery claims every requested Job, moves it to initializing, and
// submits one query task per Job.
func (s *Scheduler) ScheduleQuery(ctx context.Context) (outcomes []batchqueue.Outcome, err error) {
	ctx, span, logger := s.phase(ctx, PhaseQuery)
	defer func() { endSpan(span, err) }()

	err = s.store.WithTx(ctx, func(tx *inventory.Tx) error {
		jobs, err := tx.LockJobs(ctx, inventory.JobRequested)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}
		ids := make([]int64, 0, len(jobs))
		for _, job := range jobs {
			if err := tx.SetJobStatus(ctx, job.ID, inventory.JobInitializing); err != nil {
				return err
			}
			ids = append(ids, job.ID)
		}
		outcomes, err = s.submit(ctx, batchqueue.KindQuery, idArgs(ids), 1, false)
		return err
	})
	if err != nil {
		outcomes = nil
		logging.ErrorWithContext(logger, "query scheduling failed", "schedule_query_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "requested jobs stay requested; check the batch queue"),
		)
		return nil, err
	}
	if len(outcomes) > 0 {
		logger.Info("query tasks submitted", logging.Int("jobs", len(outcomes)))
	}
	return outcomes, nil
}
