package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func expectAffected(res sql.Result, entity string, id int64, to any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", entity, err)
	}
	if n == 0 {
		return illegalTransition(entity, id, to)
	}
	return nil
}

// setWorkStatus applies a guarded asset or product status change.
func (c conn) setWorkStatus(ctx context.Context, table, entity string, id int64, to WorkStatus) error {
	return c.traced(ctx, "inventory.Set"+entity+"Status", []attribute.KeyValue{
		attribute.Int64(entity+".id", id),
		attribute.String(entity+".status", string(to)),
	}, func(ctx context.Context) error {
		// scheduled needs a sched-id and is only entered through markScheduled.
		if to == StatusScheduled {
			return illegalTransition(entity, id, to)
		}
		sources := workTransitions[to]
		if len(sources) == 0 {
			return illegalTransition(entity, id, to)
		}
		schedExpr := "NULL"
		if to.IsActive() {
			schedExpr = "sched_id"
		}
		args := append([]any{string(to), formatTimestamp(time.Now()), id}, stringArgs(sources)...)
		res, err := c.exec(ctx,
			`UPDATE `+table+` SET status = ?, sched_id = `+schedExpr+`, updated_at = ?
             WHERE id = ? AND status IN (`+makePlaceholders(len(sources))+`)`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("update %s status: %w", entity, err)
		}
		return expectAffected(res, entity, id, to)
	})
}

func (c conn) markScheduled(ctx context.Context, table string, ids []int64, schedID string) error {
	if len(ids) == 0 {
		return nil
	}
	if schedID == "" {
		return fmt.Errorf("%w: empty sched-id for %s", ErrIllegalTransition, table)
	}
	return c.traced(ctx, "inventory.MarkScheduled", []attribute.KeyValue{
		attribute.String("table", table),
		attribute.String("sched.id", schedID),
		attribute.Int("rows", len(ids)),
	}, func(ctx context.Context) error {
		args := append([]any{string(StatusScheduled), schedID, formatTimestamp(time.Now()), string(StatusRequested)}, int64Args(ids)...)
		res, err := c.exec(ctx,
			`UPDATE `+table+` SET status = ?, sched_id = ?, updated_at = ?
             WHERE status = ? AND id IN (`+makePlaceholders(len(ids))+`)`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("mark %s scheduled: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%s rows affected: %w", table, err)
		}
		if int(n) != len(ids) {
			return fmt.Errorf("%w: %d of %d %s rows were no longer requested", ErrIllegalTransition, len(ids)-int(n), len(ids), table)
		}
		return nil
	})
}

func collectCounts(rows *sql.Rows) (StatusCounts, error) {
	defer rows.Close()
	counts := NewStatusCounts()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[WorkStatus(status)] += count
	}
	return counts, rows.Err()
}
