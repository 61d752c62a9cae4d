package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"datahandler/internal/batchqueue"
	"datahandler/internal/logging"
	"datahandler/internal/services"
)

// Summary records what one cycle newly submitted or decided.
type Summary struct {
	CycleID   string
	StartedAt time.Time
	Duration  time.Duration
	Query     []batchqueue.Outcome
	Fetch     map[string]FetchResult
	Process   []batchqueue.Outcome
	Aggregate AggregateResult
}

// Idle reports whether the cycle found nothing to do.
func (s Summary) Idle() bool {
	if len(s.Query) > 0 || len(s.Process) > 0 {
		return false
	}
	for _, r := range s.Fetch {
		if r.Claimed() > 0 || len(r.Retried) > 0 || len(r.GaveUp) > 0 {
			return false
		}
	}
	a := s.Aggregate
	return len(a.Outcomes)+len(a.Started)+len(a.Completed)+len(a.Failed) == 0
}

// RunCycle runs query, fetch for every driver, process, then
// export-and-aggregate. A failing phase does not stop later phases; every
// error is returned joined. Finding no work is not an error.
func (s *Scheduler) RunCycle(ctx context.Context) (Summary, error) {
	summary := Summary{
		CycleID:   uuid.NewString(),
		StartedAt: time.Now(),
		Fetch:     make(map[string]FetchResult, len(s.drivers)),
	}
	ctx = services.WithCycleID(ctx, summary.CycleID)
	ctx, span := s.tracer.Start(ctx, "scheduler.cycle")
	logger := logging.WithContext(ctx, s.logger)

	var errs []error
	var err error
	if summary.Query, err = s.ScheduleQuery(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, driver := range s.drivers {
		result, err := s.ScheduleFetch(ctx, driver)
		if err != nil {
			errs = append(errs, err)
		}
		summary.Fetch[driver] = result
	}
	if summary.Process, err = s.ScheduleProcess(ctx); err != nil {
		errs = append(errs, err)
	}
	if summary.Aggregate, err = s.ScheduleExportAndAggregate(ctx); err != nil {
		errs = append(errs, err)
	}

	summary.Duration = time.Since(summary.StartedAt)
	err = errors.Join(errs...)
	endSpan(span, err)
	if summary.Idle() {
		logger.Debug("cycle found no work", logging.Duration("duration", summary.Duration))
	} else {
		logger.Info("cycle complete", logging.Duration("duration", summary.Duration))
	}
	return summary, err
}

// Loop runs RunCycle immediately and then every interval until ctx ends.
// Cycle errors are logged and do not stop the loop. onCycle, when set,
// receives each summary.
func (s *Scheduler) Loop(ctx context.Context, interval time.Duration, onCycle func(Summary, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		summary, err := s.RunCycle(ctx)
		if err != nil && ctx.Err() == nil {
			logging.WarnWithContext(s.logger, "scheduling cycle finished with errors", "cycle_failed",
				logging.String(logging.FieldCycleID, summary.CycleID),
				logging.Error(err),
			)
		}
		if onCycle != nil {
			onCycle(summary, err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler loop stopped")
			return
		case <-ticker.C:
		}
	}
}
