package scheduler

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"datahandler/internal/api"
	"datahandler/internal/batchqueue"
	"datahandler/internal/config"
	"datahandler/internal/inventory"
	"datahandler/internal/logging"
	"datahandler/internal/services"
)

const (
	PhaseQuery     = "query"
	PhaseFetch     = "fetch"
	PhaseProcess   = "process"
	PhaseAggregate = "export_and_aggregate"
)

// Scheduler holds the collaborators shared by every phase. It keeps no state
// between calls.
type Scheduler struct {
	cfg     config.Scheduler
	drivers []string
	store   *inventory.Store
	api     *api.Service
	queue   batchqueue.Client
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New builds a Scheduler for every configured driver.
func New(cfg *config.Config, svc *api.Service, queue batchqueue.Client, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg.Scheduler,
		drivers: cfg.DriverNames(),
		store:   svc.Store(),
		api:     svc,
		queue:   queue,
		logger:  logging.NewComponentLogger(logger, "scheduler"),
		tracer:  otel.Tracer("datahandler/scheduler"),
	}
}

// Drivers lists the drivers ScheduleFetch runs for each cycle.
func (s *Scheduler) Drivers() []string {
	return append([]string(nil), s.drivers...)
}

// phase decorates ctx for one phase and opens its span.
func (s *Scheduler) phase(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, *slog.Logger) {
	ctx = services.WithPhase(ctx, name)
	ctx, span := s.tracer.Start(ctx, "scheduler."+name, trace.WithAttributes(attrs...))
	return ctx, span, logging.WithContext(ctx, s.logger)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// submit wraps batch submission so rejected batches carry the submission marker.
func (s *Scheduler) submit(ctx context.Context, kind batchqueue.Kind, args [][]int64, chunkSize int, chain bool) ([]batchqueue.Outcome, error) {
	outcomes, err := s.queue.Submit(ctx, kind, args, chunkSize, chain)
	if err != nil {
		return nil, services.Wrap(services.ErrSubmission, string(kind), "submit", "", err)
	}
	return outcomes, nil
}

func idArgs(ids []int64) [][]int64 {
	args := make([][]int64, len(ids))
	for i, id := range ids {
		args[i] = []int64{id}
	}
	return args
}

func taskIDs(outcome batchqueue.Outcome) []int64 {
	ids := make([]int64, 0, len(outcome.Tasks))
	for _, task := range outcome.Tasks {
		if len(task.Args) > 0 {
			ids = append(ids, task.Args[0])
		}
	}
	return ids
}
