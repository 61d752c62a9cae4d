// Package batchqueue is the client side of the external batch-execution
// queue. The scheduler submits task argument lists in bounded groups and later
// polls each group's liveness; it never waits for results.
//
// Backends: Local (an in-process worker pool), and the kubernetes and kafka
// subpackages for cluster batch jobs and a distributed task queue.
package batchqueue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Kind names the task a batch runs.
type Kind string

const (
	KindQuery              Kind = "query"
	KindFetch              Kind = "fetch"
	KindProcess            Kind = "process"
	KindExportAndAggregate Kind = "export_and_aggregate"
)

var allKinds = []Kind{KindQuery, KindFetch, KindProcess, KindExportAndAggregate}

// AllKinds returns every task kind in phase order.
func AllKinds() []Kind {
	return append([]Kind(nil), allKinds...)
}

// ParseKind converts a string into a Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(strings.ReplaceAll(value, "-", "_"))))
	for _, k := range allKinds {
		if k == normalized {
			return k, true
		}
	}
	return "", false
}

// TaskRef identifies one submitted task and its arguments.
type TaskRef struct {
	ID   string  `json:"id"`
	Args []int64 `json:"args"`
}

// Outcome is one submitted group: its batch identifier and tasks.
type Outcome struct {
	BatchID string    `json:"batch_id"`
	Tasks   []TaskRef `json:"tasks"`
}

// Client submits batches and reports their liveness.
type Client interface {
	// Submit partitions args into groups of at most chunkSize and submits each
	// group as one batch; chain runs a group's tasks sequentially.
	Submit(ctx context.Context, kind Kind, args [][]int64, chunkSize int, chain bool) ([]Outcome, error)
	// IsAlive reports whether the batch may still be running. Unknown batches
	// are dead.
	IsAlive(ctx context.Context, batchID string) (bool, error)
}

// Runner executes one task. Workers of every backend dispatch through it.
type Runner interface {
	Run(ctx context.Context, kind Kind, args []int64) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, kind Kind, args []int64) error

func (f RunnerFunc) Run(ctx context.Context, kind Kind, args []int64) error { return f(ctx, kind, args) }

// Partition splits args into consecutive groups of at most size entries.
// A non-positive size yields a single group.
func Partition(args [][]int64, size int) [][][]int64 {
	if len(args) == 0 {
		return nil
	}
	if size <= 0 || size >= len(args) {
		return [][][]int64{args}
	}
	groups := make([][][]int64, 0, (len(args)+size-1)/size)
	for start := 0; start < len(args); start += size {
		end := min(start+size, len(args))
		groups = append(groups, args[start:end])
	}
	return groups
}

// RunBatch runs tasks through runner. Chained batches stop at the first
// failure; unchained batches run every task and return the first error.
func RunBatch(ctx context.Context, runner Runner, kind Kind, tasks []TaskRef, chain bool) error {
	var firstErr error
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := runner.Run(ctx, kind, task.Args); err != nil {
			if chain {
				return fmt.Errorf("task %s: %w", task.ID, err)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("task %s: %w", task.ID, err)
			}
		}
	}
	return firstErr
}

// FormatArgs renders task args as a comma-separated list.
func FormatArgs(args []int64) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = strconv.FormatInt(a, 10)
	}
	return strings.Join(parts, ",")
}

// ParseArgs parses a comma-separated list of integers.
func ParseArgs(value string) ([]int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse task arg %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}
