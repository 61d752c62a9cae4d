package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

const assetColumns = "id, driver, asset_type, tile, date, sensor, name, status, sched_id, retry_count, updated_at"

func scanAsset(scanner interface{ Scan(dest ...any) error }) (*Asset, error) {
	var (
		asset      Asset
		dateRaw    string
		status     string
		schedID    sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&asset.ID,
		&asset.Driver,
		&asset.AssetType,
		&asset.Tile,
		&dateRaw,
		&asset.Sensor,
		&asset.Name,
		&status,
		&schedID,
		&asset.RetryCount,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	date, err := ParseDate(dateRaw)
	if err != nil {
		return nil, fmt.Errorf("asset %d date: %w", asset.ID, err)
	}
	asset.Date = date
	asset.Status = WorkStatus(status)
	asset.SchedID = schedID.String
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		asset.UpdatedAt = updated
	}
	return &asset, nil
}

func collectAssets(rows *sql.Rows) ([]*Asset, error) {
	defer rows.Close()
	var assets []*Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// protectedStatuses are left alone by a non-forced request.
var protectedStatuses = map[WorkStatus]struct{}{
	StatusScheduled:  {},
	StatusInProgress: {},
	StatusComplete:   {},
}

// RegisterAsset upserts an asset by its natural key. A new row starts
// requested. An existing row is re-requested with its sched-id cleared unless
// it is scheduled, in progress, or complete and force is unset. Only a forced
// request resets the retry budget.
func (c conn) RegisterAsset(ctx context.Context, asset Asset, force bool) (Registration, error) {
	var reg Registration
	err := c.traced(ctx, "inventory.RegisterAsset", []attribute.KeyValue{
		attribute.String("asset.key", AssetKey{asset.Driver, asset.AssetType, asset.Tile, asset.Date}.String()),
		attribute.Bool("force", force),
	}, func(ctx context.Context) error {
		now := formatTimestamp(time.Now())
		var id int64
		err := c.queryRow(ctx,
			`INSERT INTO assets (driver, asset_type, tile, date, doy, sensor, name, status, retry_count, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
             ON CONFLICT (driver, asset_type, tile, date) DO NOTHING
             RETURNING id`,
			asset.Driver, asset.AssetType, asset.Tile, FormatDate(asset.Date), asset.Date.YearDay(),
			asset.Sensor, asset.Name, string(StatusRequested), now,
		).Scan(&id)
		if err == nil {
			reg = Registration{ID: id, Created: true, Requested: true}
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("insert asset: %w", err)
		}

		existing, err := c.FindAsset(ctx, AssetKey{asset.Driver, asset.AssetType, asset.Tile, asset.Date})
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: asset %s vanished during upsert", ErrNotFound, AssetKey{asset.Driver, asset.AssetType, asset.Tile, asset.Date})
		}
		reg = Registration{ID: existing.ID}
		if _, protected := protectedStatuses[existing.Status]; protected && !force {
			return nil
		}
		retries := existing.RetryCount
		if force {
			retries = 0
		}
		if _, err := c.exec(ctx,
			`UPDATE assets SET status = ?, sched_id = NULL, retry_count = ?, sensor = ?, name = ?, updated_at = ? WHERE id = ?`,
			string(StatusRequested), retries, asset.Sensor, asset.Name, now, existing.ID,
		); err != nil {
			return fmt.Errorf("re-request asset: %w", err)
		}
		reg.Requested = true
		return nil
	})
	return reg, err
}

// GetAsset fetches an asset by identifier. A missing asset yields nil, nil.
func (c conn) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	row := c.queryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	asset, err := noRows(scanAsset(row))
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// FindAsset fetches an asset by natural key. A missing asset yields nil, nil.
func (c conn) FindAsset(ctx context.Context, key AssetKey) (*Asset, error) {
	row := c.queryRow(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE driver = ? AND asset_type = ? AND tile = ? AND date = ?`,
		key.Driver, key.AssetType, key.Tile, FormatDate(key.Date),
	)
	asset, err := noRows(scanAsset(row))
	if err != nil {
		return nil, fmt.Errorf("find asset: %w", err)
	}
	return asset, nil
}

// AssetQuery filters ListAssets. Zero values match everything.
type AssetQuery struct {
	Driver   string
	Statuses []WorkStatus
	SchedID  string
	Limit    int
}

// ListAssets returns assets matching q ordered by id.
func (c conn) ListAssets(ctx context.Context, q AssetQuery) ([]*Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE 1 = 1`
	var args []any
	if q.Driver != "" {
		query += ` AND driver = ?`
		args = append(args, q.Driver)
	}
	if len(q.Statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(q.Statuses)) + `)`
		args = append(args, stringArgs(q.Statuses)...)
	}
	if q.SchedID != "" {
		query += ` AND sched_id = ?`
		args = append(args, q.SchedID)
	}
	query += ` ORDER BY id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return collectAssets(rows)
}

// AssetStats counts assets by status, optionally restricted to one driver.
func (c conn) AssetStats(ctx context.Context, driver string) (StatusCounts, error) {
	query := `SELECT status, COUNT(1) FROM assets`
	var args []any
	if driver != "" {
		query += ` WHERE driver = ?`
		args = append(args, driver)
	}
	rows, err := c.query(ctx, query+` GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("asset stats: %w", err)
	}
	return collectCounts(rows)
}

// SetAssetStatus moves an asset to status to, keeping its sched-id while the
// status stays active and clearing it otherwise.
func (c conn) SetAssetStatus(ctx context.Context, id int64, to WorkStatus) error {
	return c.setWorkStatus(ctx, "assets", "asset", id, to)
}

// MarkAssetsScheduled stamps requested assets with schedID. Every id must
// still be requested.
func (c conn) MarkAssetsScheduled(ctx context.Context, ids []int64, schedID string) error {
	return c.markScheduled(ctx, "assets", ids, schedID)
}

// RequeueAsset returns an active asset to requested, clearing its sched-id
// and spending one unit of its retry budget.
func (c conn) RequeueAsset(ctx context.Context, id int64) error {
	return c.traced(ctx, "inventory.RequeueAsset", []attribute.KeyValue{attribute.Int64("asset.id", id)}, func(ctx context.Context) error {
		args := append([]any{string(StatusRequested), formatTimestamp(time.Now()), id}, stringArgs(ActiveStatuses)...)
		res, err := c.exec(ctx,
			`UPDATE assets SET status = ?, sched_id = NULL, retry_count = retry_count + 1, updated_at = ?
             WHERE id = ? AND status IN (`+makePlaceholders(len(ActiveStatuses))+`)`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("requeue asset: %w", err)
		}
		return expectAffected(res, "asset", id, StatusRequested)
	})
}

// LockActiveAssets selects the driver's scheduled, in-progress, and retry
// assets for update.
func (t *Tx) LockActiveAssets(ctx context.Context, driver string) ([]*Asset, error) {
	var assets []*Asset
	err := t.traced(ctx, "inventory.LockActiveAssets", []attribute.KeyValue{attribute.String("driver", driver)}, func(ctx context.Context) error {
		args := append([]any{driver}, stringArgs(ActiveStatuses)...)
		rows, err := t.query(ctx, t.dialect.forUpdate(
			`SELECT `+assetColumns+` FROM assets WHERE driver = ? AND status IN (`+makePlaceholders(len(ActiveStatuses))+`) ORDER BY id`,
		), args...)
		if err != nil {
			return fmt.Errorf("lock active assets: %w", err)
		}
		assets, err = collectAssets(rows)
		return err
	})
	return assets, err
}

// LockRequestedAssets selects up to limit requested assets of driver for
// update, ordered by id.
func (t *Tx) LockRequestedAssets(ctx context.Context, driver string, limit int) ([]*Asset, error) {
	var assets []*Asset
	err := t.traced(ctx, "inventory.LockRequestedAssets", []attribute.KeyValue{
		attribute.String("driver", driver),
		attribute.Int("limit", limit),
	}, func(ctx context.Context) error {
		rows, err := t.query(ctx, t.dialect.forUpdate(
			`SELECT `+assetColumns+` FROM assets WHERE driver = ? AND status = ? ORDER BY id LIMIT ?`,
		), driver, string(StatusRequested), limit)
		if err != nil {
			return fmt.Errorf("lock requested assets: %w", err)
		}
		assets, err = collectAssets(rows)
		return err
	})
	return assets, err
}
