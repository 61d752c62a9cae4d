// Package bootstrap assembles the store, drivers, API, task runner, batch
// queue backend, and scheduler from one Config. The CLI, the daemon, and the
// queue workers all build their object graph here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"datahandler/internal/api"
	"datahandler/internal/batchqueue"
	"datahandler/internal/batchqueue/kafka"
	"datahandler/internal/batchqueue/kubernetes"
	"datahandler/internal/config"
	"datahandler/internal/drivers"
	"datahandler/internal/inventory"
	"datahandler/internal/logging"
	"datahandler/internal/scheduler"
	"datahandler/internal/services"
	"datahandler/internal/tasks"
)

// Components is a fully wired process.
type Components struct {
	Config    *config.Config
	Store     *inventory.Store
	Drivers   *drivers.Registry
	API       *api.Service
	Runner    *tasks.Runner
	Queue     batchqueue.Client
	Local     *batchqueue.Local
	Scheduler *scheduler.Scheduler

	closers []io.Closer
}

// Options tunes Open.
type Options struct {
	// WithoutQueue skips the batch queue backend and scheduler, for commands
	// that only read or write the store.
	WithoutQueue bool
}

// Open builds every component. Close releases them.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Components, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "bootstrap", "open", "config is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := inventory.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	c := &Components{Config: cfg, Store: store, closers: []io.Closer{store}}

	c.Drivers, err = drivers.NewRegistry(cfg, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.API = api.NewService(cfg, store, c.Drivers, logger)
	c.Runner = tasks.New(c.API, c.Drivers, logger)

	if opts.WithoutQueue {
		return c, nil
	}
	if err := c.openQueue(ctx, logger); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Scheduler = scheduler.New(cfg, c.API, c.Queue, logger)
	return c, nil
}

func (c *Components) openQueue(_ context.Context, logger *slog.Logger) error {
	switch c.Config.Queue.Backend {
	case config.QueueLocal:
		c.Local = batchqueue.NewLocal(c.Runner, c.Config.Queue.LocalWorkers, logger)
		c.Queue = c.Local
		c.closers = append(c.closers, c.Local)
	case config.QueueKubernetes:
		client, err := kubernetes.New(c.Config.Queue.Kubernetes, logger)
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "bootstrap", "kubernetes queue", "create kubernetes client", err)
		}
		c.Queue = client
	case config.QueueKafka:
		client, err := kafka.Connect(c.Config.Queue.Kafka, logger)
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "bootstrap", "kafka queue", "connect to kafka", err)
		}
		c.Queue = client
		c.closers = append(c.closers, client)
	default:
		return services.Wrap(services.ErrConfiguration, "bootstrap", "queue", fmt.Sprintf("unknown queue backend %q", c.Config.Queue.Backend), nil)
	}
	logger.Debug("batch queue ready", logging.String("backend", c.Config.Queue.Backend))
	return nil
}

// Close releases components in reverse construction order.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
