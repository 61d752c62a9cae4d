package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"datahandler/internal/config"
	"datahandler/internal/drivers"
	"datahandler/internal/extent"
	"datahandler/internal/inventory"
	"datahandler/internal/logging"
	"datahandler/internal/services"
)

// Service exposes job submission, status aggregation, and driver queries.
type Service struct {
	store   *inventory.Store
	drivers *drivers.Registry
	cfg     *config.Config
	logger  *slog.Logger
}

// NewService constructs a Service around the store and driver registry.
func NewService(cfg *config.Config, store *inventory.Store, registry *drivers.Registry, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		drivers: registry,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "api"),
	}
}

// Store returns the backing inventory store.
func (s *Service) Store() *inventory.Store { return s.store }

// JobRequest carries the caller-supplied parameters of SubmitJob.
type JobRequest struct {
	Site     string
	Variable string
	Spatial  extent.SpatialSpec
	Temporal extent.TemporalSpec
}

// SubmitJob inserts a requested Job. The variable must be in the catalog and
// both specs must resolve.
func (s *Service) SubmitJob(ctx context.Context, req JobRequest) (*inventory.Job, error) {
	variable, ok := s.cfg.Variable(strings.TrimSpace(req.Variable))
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "api", "submit job", fmt.Sprintf("unknown variable %q", req.Variable), nil)
	}
	if _, err := req.Spatial.Resolve(); err != nil {
		return nil, err
	}
	if _, err := req.Temporal.Resolve(); err != nil {
		return nil, err
	}
	job, err := s.store.CreateJob(ctx, inventory.NewJob{
		Site:     strings.TrimSpace(req.Site),
		Variable: variable.Name,
		Driver:   variable.Driver,
		Product:  variable.Product,
		Spatial:  req.Spatial.Encode(),
		Temporal: req.Temporal.Encode(),
	})
	if err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}
	s.logger.Info("job submitted",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("site", job.Site),
		logging.String("variable", job.Variable),
		logging.String(logging.FieldDriver, job.Driver),
	)
	return job, nil
}

// ProcessingStatus counts the driver's Products inside the spatial and
// temporal bounds by status. Every status key is present.
func (s *Service) ProcessingStatus(ctx context.Context, driver string, spatial extent.SpatialSpec, temporal extent.TemporalSpec, products []string) (inventory.StatusCounts, error) {
	if _, err := s.drivers.Get(driver); err != nil {
		return nil, err
	}
	resolved, err := spatial.Resolve()
	if err != nil {
		return nil, err
	}
	bounds, err := temporal.Resolve()
	if err != nil {
		return nil, err
	}
	return s.store.CountProducts(ctx, inventory.ProductFilter{
		Driver:   driver,
		Products: products,
		Tiles:    resolved.Tiles,
		From:     bounds.From,
		To:       bounds.To,
		DayFrom:  bounds.DayFrom,
		DayTo:    bounds.DayTo,
	})
}

// JobProcessingStatus is ProcessingStatus over a Job's own parameters.
func (s *Service) JobProcessingStatus(ctx context.Context, job *inventory.Job) (inventory.StatusCounts, error) {
	spatial, temporal, err := JobSpecs(job)
	if err != nil {
		return nil, err
	}
	return s.ProcessingStatus(ctx, job.Driver, spatial, temporal, []string{job.Product})
}

// JobStatus reports a Job's status. Detail is empty for unknown jobs and for
// jobs that have not started querying yet.
func (s *Service) JobStatus(ctx context.Context, id int64) (JobStatusResult, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return JobStatusResult{}, err
	}
	if job == nil {
		return JobStatusResult{Status: StatusDoesNotExist, Detail: map[string]int{}}, nil
	}
	if job.Status == inventory.JobRequested || job.Status == inventory.JobInitializing {
		return JobStatusResult{Status: string(job.Status), Detail: map[string]int{}}, nil
	}
	counts, err := s.JobProcessingStatus(ctx, job)
	if err != nil {
		return JobStatusResult{}, err
	}
	return JobStatusResult{Status: string(job.Status), Detail: CountsMap(counts)}, nil
}

// JobSpecs decodes the stored spatial and temporal specs of a Job.
func JobSpecs(job *inventory.Job) (extent.SpatialSpec, extent.TemporalSpec, error) {
	spatial, err := extent.ParseSpatial(job.Spatial)
	if err != nil {
		return extent.SpatialSpec{}, extent.TemporalSpec{}, fmt.Errorf("job %d: %w", job.ID, err)
	}
	temporal, err := extent.ParseTemporal(job.Temporal)
	if err != nil {
		return extent.SpatialSpec{}, extent.TemporalSpec{}, fmt.Errorf("job %d: %w", job.ID, err)
	}
	return spatial, temporal, nil
}

// JobCounts counts Jobs by status. Every job status key is present.
func (s *Service) JobCounts(ctx context.Context) (map[string]int, error) {
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(inventory.AllJobStatuses()))
	for _, status := range inventory.AllJobStatuses() {
		out[string(status)] = 0
	}
	for _, job := range jobs {
		out[string(job.Status)]++
	}
	return out, nil
}
