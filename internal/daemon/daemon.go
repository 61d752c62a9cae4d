package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"datahandler/internal/api"
	"datahandler/internal/bootstrap"
	"datahandler/internal/config"
	"datahandler/internal/logging"
	"datahandler/internal/notifications"
	"datahandler/internal/scheduler"
)

// Daemon coordinates the scheduler loop and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	components *bootstrap.Components
	interval   time.Duration

	lockPath string
	lock     *flock.Flock
	server   *apiServer
	notifier notifications.Service

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	cycles    int
	lastCycle *api.CycleView
}

// New constructs a daemon over fully wired components.
func New(cfg *config.Config, components *bootstrap.Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || components == nil || components.Scheduler == nil {
		return nil, errors.New("daemon requires config and components with a scheduler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		components: components,
		interval:   time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
		notifier:   notifications.NewService(cfg.Notifications),
	}
	d.server = newAPIServer(cfg.Daemon, d, logger)
	return d, nil
}

// Start acquires the daemon lock, then launches the scheduler loop and the
// HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another datahandler daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.server.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel
	d.running.Store(true)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.components.Scheduler.Loop(runCtx, d.interval, d.recordCycle)
	}()

	d.logger.Info("datahandler daemon started",
		logging.String("lock", d.lockPath),
		logging.Duration("interval", d.interval),
		logging.String("queue_backend", d.cfg.Queue.Backend),
	)
	return nil
}

// Stop stops the scheduler loop and the API, waits for in-process batches,
// and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.server.stop()

	if local := d.components.Local; local != nil {
		waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := local.Wait(waitCtx); err != nil {
			d.logger.Warn("in-process batches still running at shutdown",
				logging.Int("pending", local.Pending()),
				logging.Error(err),
			)
		}
		cancel()
	}

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("datahandler daemon stopped")
}

// Close stops the daemon and releases its components.
func (d *Daemon) Close() error {
	d.Stop()
	return d.components.Close()
}

// API exposes the status and query service.
func (d *Daemon) API() *api.Service {
	return d.components.API
}

func (d *Daemon) recordCycle(summary scheduler.Summary, err error) {
	view := cycleView(summary, err)
	d.mu.Lock()
	d.cycles++
	d.lastCycle = &view
	d.mu.Unlock()
	d.notifyCycle(summary, err)
}

// notifyCycle publishes job outcomes and cycle errors. Delivery failures are
// logged and never affect scheduling.
func (d *Daemon) notifyCycle(summary scheduler.Summary, cycleErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	publish := func(event notifications.Event, payload notifications.Payload) {
		if err := d.notifier.Publish(ctx, event, payload); err != nil {
			d.logger.Warn("notification failed",
				logging.String("event", string(event)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			)
		}
	}

	if cycleErr != nil && !errors.Is(cycleErr, context.Canceled) {
		publish(notifications.EventCycleFailed, notifications.Payload{
			"cycleID": summary.CycleID,
			"error":   cycleErr.Error(),
		})
	}
	for _, id := range summary.Aggregate.Completed {
		publish(notifications.EventJobCompleted, d.jobPayload(ctx, id))
	}
	for _, id := range summary.Aggregate.Failed {
		publish(notifications.EventJobFailed, d.jobPayload(ctx, id))
	}
}

func (d *Daemon) jobPayload(ctx context.Context, id int64) notifications.Payload {
	payload := notifications.Payload{"jobID": fmt.Sprintf("%d", id)}
	job, err := d.components.Store.GetJob(ctx, id)
	if err != nil || job == nil {
		return payload
	}
	payload["site"] = job.Site
	payload["variable"] = job.Variable
	return payload
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	jobs, err := d.components.API.JobCounts(ctx)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	d.mu.Lock()
	cycles, last := d.cycles, d.lastCycle
	d.mu.Unlock()
	return api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		StoreBackend: d.components.Store.Backend(),
		QueueBackend: d.cfg.Queue.Backend,
		Drivers:      d.components.Scheduler.Drivers(),
		Cycles:       cycles,
		LastCycle:    last,
		Jobs:         jobs,
	}, nil
}

func cycleView(summary scheduler.Summary, err error) api.CycleView {
	view := api.CycleView{
		CycleID:         summary.CycleID,
		StartedAt:       summary.StartedAt.UTC().Format(time.RFC3339),
		DurationMillis:  summary.Duration.Milliseconds(),
		QueryBatches:    len(summary.Query),
		FetchBatches:    make(map[string]int, len(summary.Fetch)),
		ProcessBatches:  len(summary.Process),
		AggregateChunks: len(summary.Aggregate.Outcomes),
		JobsStarted:     len(summary.Aggregate.Started),
		JobsCompleted:   len(summary.Aggregate.Completed),
		JobsFailed:      len(summary.Aggregate.Failed),
	}
	for driver, result := range summary.Fetch {
		view.FetchBatches[driver] = len(result.Outcomes)
	}
	if err != nil {
		view.Error = err.Error()
	}
	return view
}
