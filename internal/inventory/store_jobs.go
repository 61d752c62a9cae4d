package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

const jobColumns = "id, site, variable, driver, product, spatial, temporal, status, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job        Job
		status     string
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Site,
		&job.Variable,
		&job.Driver,
		&job.Product,
		&job.Spatial,
		&job.Temporal,
		&status,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	job.Status = JobStatus(status)
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CreateJob inserts a job with status requested.
func (c conn) CreateJob(ctx context.Context, in NewJob) (*Job, error) {
	var job *Job
	err := c.traced(ctx, "inventory.CreateJob", []attribute.KeyValue{attribute.String("variable", in.Variable)}, func(ctx context.Context) error {
		now := formatTimestamp(time.Now())
		var id int64
		if err := c.queryRow(ctx,
			`INSERT INTO jobs (site, variable, driver, product, spatial, temporal, status, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
			in.Site, in.Variable, in.Driver, in.Product, in.Spatial, in.Temporal, string(JobRequested), now, now,
		).Scan(&id); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		var err error
		job, err = c.GetJob(ctx, id)
		return err
	})
	return job, err
}

// GetJob fetches a job by identifier. A missing job yields nil, nil.
func (c conn) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := c.queryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := noRows(scanJob(row))
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs filtered by status (all jobs when none are given), oldest first.
func (c conn) ListJobs(ctx context.Context, statuses ...JobStatus) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		args = stringArgs(statuses)
	}
	rows, err := c.query(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collectJobs(rows)
}

// SetJobStatus moves a job to status to. The update only applies when the
// job's current status is a legal source for to.
func (c conn) SetJobStatus(ctx context.Context, id int64, to JobStatus) error {
	return c.traced(ctx, "inventory.SetJobStatus", []attribute.KeyValue{
		attribute.Int64("job.id", id),
		attribute.String("job.status", string(to)),
	}, func(ctx context.Context) error {
		sources := jobTransitions[to]
		if len(sources) == 0 {
			return illegalTransition("job", id, to)
		}
		args := append([]any{string(to), formatTimestamp(time.Now()), id}, stringArgs(sources)...)
		res, err := c.exec(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+makePlaceholders(len(sources))+`)`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("update job status: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("job rows affected: %w", err)
		} else if n == 0 {
			return illegalTransition("job", id, to)
		}
		return nil
	})
}

// LockJobs selects jobs in status for update, ordered by id.
func (t *Tx) LockJobs(ctx context.Context, status JobStatus) ([]*Job, error) {
	var jobs []*Job
	err := t.traced(ctx, "inventory.LockJobs", []attribute.KeyValue{attribute.String("job.status", string(status))}, func(ctx context.Context) error {
		rows, err := t.query(ctx, t.dialect.forUpdate(`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY id`), string(status))
		if err != nil {
			return fmt.Errorf("lock jobs: %w", err)
		}
		jobs, err = collectJobs(rows)
		return err
	})
	return jobs, err
}

// LockJob selects one job for update. A missing job yields nil, nil.
func (t *Tx) LockJob(ctx context.Context, id int64) (*Job, error) {
	var job *Job
	err := t.traced(ctx, "inventory.LockJob", []attribute.KeyValue{attribute.Int64("job.id", id)}, func(ctx context.Context) error {
		row := t.queryRow(ctx, t.dialect.forUpdate(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
		var err error
		if job, err = noRows(scanJob(row)); err != nil {
			return fmt.Errorf("lock job: %w", err)
		}
		return nil
	})
	return job, err
}
