package tasks

import (
	"context"
	"fmt"

	"datahandler/internal/api"
	"datahandler/internal/inventory"
	"datahandler/internal/logging"
	"datahandler/internal/services"
)

// Query discovers what an initializing Job needs, registers the missing
// Assets and Products, and moves the Job to in-progress. A Job whose query
// fails is marked failed.
func (r *Runner) Query(ctx context.Context, jobID int64) error {
	ctx = services.WithJobID(ctx, jobID)
	logger := logging.WithContext(ctx, r.logger)

	var job *inventory.Job
	err := awaitClaim(ctx, func() (bool, error) {
		var err error
		job, err = r.store.GetJob(ctx, jobID)
		return job != nil && job.Status == inventory.JobRequested, err
	})
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "tasks", "query", fmt.Sprintf("job %d", jobID), nil)
	}
	if job.Status != inventory.JobInitializing {
		logger.Debug("job no longer initializing; skipping query", logging.String("status", string(job.Status)))
		return nil
	}

	outcome, err := r.runQuery(ctx, job)
	if err != nil {
		if setErr := r.store.SetJobStatus(ctx, jobID, inventory.JobFailed); setErr != nil {
			return fmt.Errorf("%w (marking job failed: %v)", err, setErr)
		}
		logging.ErrorWithContext(logger, "job query failed", "job_query_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the job's spatial and temporal specs and the driver"),
		)
		return err
	}
	if err := r.store.SetJobStatus(ctx, jobID, inventory.JobInProgress); err != nil {
		return err
	}
	logger.Info("job query complete",
		logging.Int("items", len(outcome.Items)),
		logging.Int("assets_requested", outcome.AssetsRequested),
		logging.Int("products_requested", outcome.ProductsRequested),
	)
	return nil
}

func (r *Runner) runQuery(ctx context.Context, job *inventory.Job) (*api.QueryOutcome, error) {
	spatial, temporal, err := api.JobSpecs(job)
	if err != nil {
		return nil, err
	}
	return r.api.QueryService(ctx, api.QueryRequest{
		Driver:   job.Driver,
		Spatial:  spatial,
		Temporal: temporal,
		Products: []string{job.Product},
		Type:     string(api.QueryMissing),
		Action:   string(api.ActionRequestProduct),
	})
}
