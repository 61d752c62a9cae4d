package batchqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"datahandler/internal/logging"
	"datahandler/internal/services"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("batch queue closed")

// Local runs batches on an in-process worker pool. A chained batch occupies
// one worker for its whole run; an unchained batch spreads its tasks across
// workers. Batch ids are forgotten once the batch finishes, so a restarted
// process reports every earlier batch as dead.
type Local struct {
	runner Runner
	logger *slog.Logger
	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	alive  map[string]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewLocal builds a pool of workers executing through runner.
func NewLocal(runner Runner, workers int, logger *slog.Logger) *Local {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Local{
		runner: runner,
		logger: logging.NewComponentLogger(logger, "batchqueue.local"),
		sem:    make(chan struct{}, workers),
		ctx:    ctx,
		cancel: cancel,
		alive:  make(map[string]struct{}),
	}
}

// Submit starts one batch per group. It never blocks on execution.
func (l *Local) Submit(ctx context.Context, kind Kind, args [][]int64, chunkSize int, chain bool) ([]Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, services.Wrap(services.ErrSubmission, "batchqueue", "submit", string(kind), ErrClosed)
	}

	groups := Partition(args, chunkSize)
	outcomes := make([]Outcome, 0, len(groups))
	for _, group := range groups {
		outcome := Outcome{BatchID: uuid.NewString()}
		for _, a := range group {
			outcome.Tasks = append(outcome.Tasks, TaskRef{ID: uuid.NewString(), Args: append([]int64(nil), a...)})
		}
		l.alive[outcome.BatchID] = struct{}{}
		l.wg.Add(1)
		go l.run(kind, outcome, chain)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (l *Local) run(kind Kind, batch Outcome, chain bool) {
	defer l.wg.Done()
	defer l.finish(batch.BatchID)

	logger := l.logger.With(
		logging.String(logging.FieldTaskKind, string(kind)),
		logging.String(logging.FieldSchedID, batch.BatchID),
	)

	if chain {
		if !l.acquire() {
			return
		}
		defer l.release()
		if err := RunBatch(l.ctx, l.runner, kind, batch.Tasks, true); err != nil {
			logging.WarnWithContext(logger, "chained batch stopped", "batch_failed", logging.Error(err))
		}
		return
	}

	var wg sync.WaitGroup
	for _, task := range batch.Tasks {
		if !l.acquire() {
			break
		}
		wg.Add(1)
		go func(task TaskRef) {
			defer wg.Done()
			defer l.release()
			if err := RunBatch(l.ctx, l.runner, kind, []TaskRef{task}, false); err != nil {
				logging.WarnWithContext(logger, "task failed", "task_failed", logging.Error(err))
			}
		}(task)
	}
	wg.Wait()
}

func (l *Local) acquire() bool {
	select {
	case l.sem <- struct{}{}:
		return true
	case <-l.ctx.Done():
		return false
	}
}

func (l *Local) release() { <-l.sem }

func (l *Local) finish(batchID string) {
	l.mu.Lock()
	delete(l.alive, batchID)
	l.mu.Unlock()
}

// IsAlive reports whether the batch is still queued or running.
func (l *Local) IsAlive(_ context.Context, batchID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.alive[batchID]
	return ok, nil
}

// Pending returns the number of batches still queued or running.
func (l *Local) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.alive)
}

// Wait blocks until every submitted batch has finished or ctx ends.
func (l *Local) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting batches, cancels running tasks, and waits for workers.
func (l *Local) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cancel()
	l.wg.Wait()
	return nil
}
