package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

const chunkColumns = "id, job_id, args, status, sched_id, updated_at"

// EncodeChunkArgs renders chunk args as the stored JSON tuple.
func EncodeChunkArgs(args ChunkArgs) string {
	data, _ := json.Marshal(args[:])
	return string(data)
}

// DecodeChunkArgs parses a stored JSON tuple.
func DecodeChunkArgs(raw string) (ChunkArgs, error) {
	var values []int64
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return ChunkArgs{}, fmt.Errorf("decode chunk args: %w", err)
	}
	if len(values) != 3 {
		return ChunkArgs{}, fmt.Errorf("decode chunk args: want 3 values, got %d", len(values))
	}
	return ChunkArgs{values[0], values[1], values[2]}, nil
}

func scanChunk(scanner interface{ Scan(dest ...any) error }) (*PostProcessJob, error) {
	var (
		chunk      PostProcessJob
		argsRaw    string
		status     string
		schedID    sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&chunk.ID, &chunk.JobID, &argsRaw, &status, &schedID, &updatedRaw); err != nil {
		return nil, err
	}
	args, err := DecodeChunkArgs(argsRaw)
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", chunk.ID, err)
	}
	chunk.Args = args
	chunk.Status = WorkStatus(status)
	chunk.SchedID = schedID.String
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		chunk.UpdatedAt = updated
	}
	return &chunk, nil
}

func collectChunks(rows *sql.Rows) ([]*PostProcessJob, error) {
	defer rows.Close()
	var chunks []*PostProcessJob
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// EnsureChunk returns the chunk keyed by (job, args), creating it as
// requested when absent.
func (c conn) EnsureChunk(ctx context.Context, args ChunkArgs) (*PostProcessJob, bool, error) {
	var (
		chunk   *PostProcessJob
		created bool
	)
	encoded := EncodeChunkArgs(args)
	err := c.traced(ctx, "inventory.EnsureChunk", []attribute.KeyValue{
		attribute.Int64("job.id", args[0]),
		attribute.String("chunk.args", encoded),
	}, func(ctx context.Context) error {
		var id int64
		err := c.queryRow(ctx,
			`INSERT INTO post_process_jobs (job_id, args, status, updated_at) VALUES (?, ?, ?, ?)
             ON CONFLICT (job_id, args) DO NOTHING RETURNING id`,
			args[0], encoded, string(StatusRequested), formatTimestamp(time.Now()),
		).Scan(&id)
		switch {
		case err == nil:
			created = true
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("insert chunk: %w", err)
		}
		row := c.queryRow(ctx, `SELECT `+chunkColumns+` FROM post_process_jobs WHERE job_id = ? AND args = ?`, args[0], encoded)
		chunk, err = scanChunk(row)
		if err != nil {
			return fmt.Errorf("load chunk: %w", err)
		}
		return nil
	})
	return chunk, created, err
}

// GetChunk fetches a chunk by identifier. A missing chunk yields nil, nil.
func (c conn) GetChunk(ctx context.Context, id int64) (*PostProcessJob, error) {
	row := c.queryRow(ctx, `SELECT `+chunkColumns+` FROM post_process_jobs WHERE id = ?`, id)
	chunk, err := noRows(scanChunk(row))
	if err != nil {
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	return chunk, nil
}

// FindChunk fetches a chunk by (job, args). A missing chunk yields nil, nil.
func (c conn) FindChunk(ctx context.Context, args ChunkArgs) (*PostProcessJob, error) {
	row := c.queryRow(ctx,
		`SELECT `+chunkColumns+` FROM post_process_jobs WHERE job_id = ? AND args = ?`,
		args[0], EncodeChunkArgs(args),
	)
	chunk, err := noRows(scanChunk(row))
	if err != nil {
		return nil, fmt.Errorf("find chunk: %w", err)
	}
	return chunk, nil
}

// ListChunks returns a job's chunks ordered by id.
func (c conn) ListChunks(ctx context.Context, jobID int64) ([]*PostProcessJob, error) {
	rows, err := c.query(ctx, `SELECT `+chunkColumns+` FROM post_process_jobs WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return collectChunks(rows)
}

// MarkChunkScheduled stamps a requested chunk with schedID.
func (c conn) MarkChunkScheduled(ctx context.Context, id int64, schedID string) error {
	return c.markScheduled(ctx, "post_process_jobs", []int64{id}, schedID)
}

// SetChunkStatus moves a chunk to status to under the chunk transition table.
func (c conn) SetChunkStatus(ctx context.Context, id int64, to WorkStatus) error {
	return c.traced(ctx, "inventory.SetChunkStatus", []attribute.KeyValue{
		attribute.Int64("chunk.id", id),
		attribute.String("chunk.status", string(to)),
	}, func(ctx context.Context) error {
		sources := chunkTransitions[to]
		if len(sources) == 0 || to == StatusScheduled {
			return illegalTransition("chunk", id, to)
		}
		schedExpr := "NULL"
		if to == StatusInProgress {
			schedExpr = "sched_id"
		}
		args := append([]any{string(to), formatTimestamp(time.Now()), id}, stringArgs(sources)...)
		res, err := c.exec(ctx,
			`UPDATE post_process_jobs SET status = ?, sched_id = `+schedExpr+`, updated_at = ?
             WHERE id = ? AND status IN (`+makePlaceholders(len(sources))+`)`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("update chunk status: %w", err)
		}
		return expectAffected(res, "chunk", id, to)
	})
}

// LockChunks selects a job's chunks for update ordered by id.
func (t *Tx) LockChunks(ctx context.Context, jobID int64) ([]*PostProcessJob, error) {
	var chunks []*PostProcessJob
	err := t.traced(ctx, "inventory.LockChunks", []attribute.KeyValue{attribute.Int64("job.id", jobID)}, func(ctx context.Context) error {
		rows, err := t.query(ctx, t.dialect.forUpdate(`SELECT `+chunkColumns+` FROM post_process_jobs WHERE job_id = ? ORDER BY id`), jobID)
		if err != nil {
			return fmt.Errorf("lock chunks: %w", err)
		}
		chunks, err = collectChunks(rows)
		return err
	})
	return chunks, err
}
