package scheduler

import (
	"context"
	"errors"

	"datahandler/internal/api"
	"datahandler/internal/batchqueue"
	"datahandler/internal/inventory"
	"datahandler/internal/logging"
	"datahandler/internal/services"
)

// AggregateResult reports what one ScheduleExportAndAggregate call did.
type AggregateResult struct {
	Outcomes  []batchqueue.Outcome
	Started   []int64
	Completed []int64
	Failed    []int64
}

// ChunkSize returns how many extents each chunk covers: size when n exceeds
// threshold, otherwise all n in one chunk.
func ChunkSize(n, size, threshold int) int {
	if n > threshold {
		return size
	}
	return n
}

// ChunkArgs splits n extents of job into consecutive [start, end) chunks.
func ChunkArgs(jobID int64, n, size, threshold int) []inventory.ChunkArgs {
	k := ChunkSize(n, size, threshold)
	if n <= 0 || k <= 0 {
		return nil
	}
	chunks := make([]inventory.ChunkArgs, 0, (n+k-1)/k)
	for start := 0; start < n; start += k {
		end := min(start+k, n)
		chunks = append(chunks, inventory.ChunkArgs{jobID, int64(start), int64(end)})
	}
	return chunks
}

// ScheduleExportAndAggregate fans ready in-progress Jobs out into chunks and
// fans post-processing Jobs back in from their chunks' status.
func (s *Scheduler) ScheduleExportAndAggregate(ctx context.Context) (result AggregateResult, err error) {
	ctx, span, logger := s.phase(ctx, PhaseAggregate)
	defer func() { endSpan(span, err) }()

	var errs []error
	if err := s.startReadyJobs(ctx, &result); err != nil {
		errs = append(errs, err)
	}
	if err := s.finishJobs(ctx, &result); err != nil {
		errs = append(errs, err)
	}
	err = errors.Join(errs...)
	if err != nil {
		logging.ErrorWithContext(logger, "aggregate scheduling failed", "schedule_aggregate_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "affected jobs are retried next cycle"),
		)
	}
	if len(result.Started)+len(result.Completed)+len(result.Failed) > 0 {
		logger.Info("aggregate phase updated jobs",
			logging.Int("started", len(result.Started)),
			logging.Int("completed", len(result.Completed)),
			logging.Int("failed", len(result.Failed)),
		)
	}
	return result, err
}

func (s *Scheduler) startReadyJobs(ctx context.Context, result *AggregateResult) error {
	jobs, err := s.store.ListJobs(ctx, inventory.JobInProgress)
	if err != nil {
		return err
	}
	var errs []error
	for _, job := range jobs {
		counts, err := s.api.JobProcessingStatus(ctx, job)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if counts.Outstanding() > 0 {
			continue
		}
		if err := s.startJob(services.WithJobID(ctx, job.ID), job.ID, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) startJob(ctx context.Context, jobID int64, result *AggregateResult) error {
	logger := logging.WithContext(ctx, s.logger)
	var (
		outcomes []batchqueue.Outcome
		failed   bool
		started  bool
	)
	err := s.store.WithTx(ctx, func(tx *inventory.Tx) error {
		job, err := tx.LockJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job == nil || job.Status != inventory.JobInProgress {
			return nil
		}
		spatialSpec, _, err := api.JobSpecs(job)
		if err != nil {
			return err
		}
		spatial, err := spatialSpec.Resolve()
		if err != nil {
			return err
		}
		n := len(spatial.Extents)
		if n == 0 {
			failed = true
			return tx.SetJobStatus(ctx, job.ID, inventory.JobFailed)
		}

		var (
			pending []*inventory.PostProcessJob
			args    [][]int64
		)
		for _, chunkArgs := range ChunkArgs(job.ID, n, s.cfg.AggregateChunkSize, s.cfg.AggregateChunkThreshold) {
			chunk, _, err := tx.EnsureChunk(ctx, chunkArgs)
			if err != nil {
				return err
			}
			if chunk.Status != inventory.StatusRequested {
				continue
			}
			pending = append(pending, chunk)
			args = append(args, chunkArgs[:])
		}
		if len(args) > 0 {
			outcomes, err = s.submit(ctx, batchqueue.KindExportAndAggregate, args, 1, false)
			if err != nil {
				return err
			}
			if len(outcomes) != len(pending) {
				return services.Wrap(services.ErrSubmission, PhaseAggregate, "submit", "batch count does not match chunk count", nil)
			}
			for i, outcome := range outcomes {
				if err := tx.MarkChunkScheduled(ctx, pending[i].ID, outcome.BatchID); err != nil {
					return err
				}
			}
		}
		started = true
		return tx.SetJobStatus(ctx, job.ID, inventory.JobPostProcessing)
	})
	if err != nil {
		return err
	}
	switch {
	case failed:
		result.Failed = append(result.Failed, jobID)
		logging.WarnWithContext(logger, "job has no spatial extents to aggregate", "aggregate_no_extents",
			logging.String(logging.FieldImpact, "job marked failed"),
			logging.String(logging.FieldErrorHint, "resubmit with a spatial spec that lists tiles or features"),
		)
	case started:
		result.Started = append(result.Started, jobID)
		result.Outcomes = append(result.Outcomes, outcomes...)
		logger.Info("aggregate chunks submitted", logging.Int("chunks", len(outcomes)))
	}
	return nil
}

func (s *Scheduler) finishJobs(ctx context.Context, result *AggregateResult) error {
	jobs, err := s.store.ListJobs(ctx, inventory.JobPostProcessing)
	if err != nil {
		return err
	}
	var errs []error
	for _, job := range jobs {
		if err := s.finishJob(services.WithJobID(ctx, job.ID), job.ID, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) finishJob(ctx context.Context, jobID int64, result *AggregateResult) error {
	logger := logging.WithContext(ctx, s.logger)
	var final inventory.JobStatus
	err := s.store.WithTx(ctx, func(tx *inventory.Tx) error {
		job, err := tx.LockJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job == nil || job.Status != inventory.JobPostProcessing {
			return nil
		}
		chunks, err := tx.LockChunks(ctx, jobID)
		if err != nil {
			return err
		}
		for _, chunk := range chunks {
			if chunk.Status != inventory.StatusScheduled && chunk.Status != inventory.StatusInProgress {
				continue
			}
			alive, err := s.queue.IsAlive(ctx, chunk.SchedID)
			if err != nil {
				return err
			}
			if alive {
				break
			}
			if err := tx.SetChunkStatus(ctx, chunk.ID, inventory.StatusFailed); err != nil {
				return err
			}
			logging.WarnWithContext(logger, "aggregate chunk lost its batch", "aggregate_chunk_lost",
				logging.Int64("chunk_id", chunk.ID),
				logging.String(logging.FieldSchedID, chunk.SchedID),
				logging.String(logging.FieldImpact, "chunk and job marked failed"),
			)
			chunk.Status = inventory.StatusFailed
			break
		}

		complete := len(chunks) > 0
		for _, chunk := range chunks {
			if chunk.Status == inventory.StatusFailed {
				final = inventory.JobFailed
				return tx.SetJobStatus(ctx, jobID, final)
			}
			if chunk.Status != inventory.StatusComplete {
				complete = false
			}
		}
		if complete {
			final = inventory.JobComplete
			return tx.SetJobStatus(ctx, jobID, final)
		}
		return nil
	})
	if err != nil {
		return err
	}
	switch final {
	case inventory.JobComplete:
		result.Completed = append(result.Completed, jobID)
		logger.Info("job complete")
	case inventory.JobFailed:
		result.Failed = append(result.Failed, jobID)
		logging.WarnWithContext(logger, "job failed during aggregation", "job_failed",
			logging.String(logging.FieldImpact, "job will not complete"),
			logging.String(logging.FieldErrorHint, "inspect chunk status with datahandler inventory chunks"),
		)
	}
	return nil
}
