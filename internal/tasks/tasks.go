// Package tasks implements the worker side of the four task kinds. Every
// batch queue backend dispatches into Runner, whether in-process, from a
// cluster Job's "datahandler task" command, or from a Kafka worker.
//
// Tasks move their own row through in-progress to a terminal or retry state;
// a task that finds its row already past the expected status does nothing, so
// redelivered tasks are harmless.
package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"datahandler/internal/api"
	"datahandler/internal/batchqueue"
	"datahandler/internal/drivers"
	"datahandler/internal/inventory"
	"datahandler/internal/logging"
	"datahandler/internal/services"
)

// Runner executes tasks against the inventory and the configured drivers.
type Runner struct {
	api     *api.Service
	store   *inventory.Store
	drivers *drivers.Registry
	logger  *slog.Logger
}

// New constructs a Runner.
func New(svc *api.Service, registry *drivers.Registry, logger *slog.Logger) *Runner {
	return &Runner{
		api:     svc,
		store:   svc.Store(),
		drivers: registry,
		logger:  logging.NewComponentLogger(logger, "tasks"),
	}
}

// Run dispatches one task by kind.
func (r *Runner) Run(ctx context.Context, kind batchqueue.Kind, args []int64) error {
	switch kind {
	case batchqueue.KindQuery:
		if len(args) != 1 {
			return argError(kind, args)
		}
		return r.Query(ctx, args[0])
	case batchqueue.KindFetch:
		if len(args) != 1 {
			return argError(kind, args)
		}
		return r.Fetch(ctx, args[0])
	case batchqueue.KindProcess:
		if len(args) != 1 {
			return argError(kind, args)
		}
		return r.Process(ctx, args[0])
	case batchqueue.KindExportAndAggregate:
		if len(args) != 3 {
			return argError(kind, args)
		}
		return r.ExportAndAggregate(ctx, inventory.ChunkArgs{args[0], args[1], args[2]})
	default:
		return services.Wrap(services.ErrNotImplemented, "tasks", "run", fmt.Sprintf("task kind %q", kind), nil)
	}
}

func argError(kind batchqueue.Kind, args []int64) error {
	return services.Wrap(services.ErrValidation, "tasks", string(kind), fmt.Sprintf("unexpected args %v", args), nil)
}
