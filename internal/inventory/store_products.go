package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

const productColumns = "id, driver, product, tile, date, sensor, name, status, sched_id, updated_at"

func scanProduct(scanner interface{ Scan(dest ...any) error }) (*Product, error) {
	var (
		product    Product
		dateRaw    string
		status     string
		schedID    sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&product.ID,
		&product.Driver,
		&product.Product,
		&product.Tile,
		&dateRaw,
		&product.Sensor,
		&product.Name,
		&status,
		&schedID,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	date, err := ParseDate(dateRaw)
	if err != nil {
		return nil, fmt.Errorf("product %d date: %w", product.ID, err)
	}
	product.Date = date
	product.Status = WorkStatus(status)
	product.SchedID = schedID.String
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		product.UpdatedAt = updated
	}
	return &product, nil
}

func collectProducts(rows *sql.Rows) ([]*Product, error) {
	defer rows.Close()
	var products []*Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

// RegisterProduct upserts a product by its natural key under the same
// override rule as RegisterAsset. On first creation the product is linked to
// every asset in assetIDs.
func (c conn) RegisterProduct(ctx context.Context, product Product, assetIDs []int64, force bool) (Registration, error) {
	key := ProductKey{product.Driver, product.Product, product.Tile, product.Date}
	var reg Registration
	err := c.traced(ctx, "inventory.RegisterProduct", []attribute.KeyValue{
		attribute.String("product.key", key.String()),
		attribute.Bool("force", force),
		attribute.Int("dependencies", len(assetIDs)),
	}, func(ctx context.Context) error {
		now := formatTimestamp(time.Now())
		var id int64
		err := c.queryRow(ctx,
			`INSERT INTO products (driver, product, tile, date, doy, sensor, name, status, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT (driver, product, tile, date) DO NOTHING
             RETURNING id`,
			product.Driver, product.Product, product.Tile, FormatDate(product.Date), product.Date.YearDay(),
			product.Sensor, product.Name, string(StatusRequested), now,
		).Scan(&id)
		if err == nil {
			for _, assetID := range assetIDs {
				if _, err := c.exec(ctx,
					`INSERT INTO asset_dependencies (product_id, asset_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
					id, assetID,
				); err != nil {
					return fmt.Errorf("link product %d to asset %d: %w", id, assetID, err)
				}
			}
			reg = Registration{ID: id, Created: true, Requested: true}
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("insert product: %w", err)
		}

		existing, err := c.FindProduct(ctx, key)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: product %s vanished during upsert", ErrNotFound, key)
		}
		reg = Registration{ID: existing.ID}
		if _, protected := protectedStatuses[existing.Status]; protected && !force {
			return nil
		}
		if _, err := c.exec(ctx,
			`UPDATE products SET status = ?, sched_id = NULL, sensor = ?, name = ?, updated_at = ? WHERE id = ?`,
			string(StatusRequested), product.Sensor, product.Name, now, existing.ID,
		); err != nil {
			return fmt.Errorf("re-request product: %w", err)
		}
		reg.Requested = true
		return nil
	})
	return reg, err
}

// GetProduct fetches a product by identifier. A missing product yields nil, nil.
func (c conn) GetProduct(ctx context.Context, id int64) (*Product, error) {
	row := c.queryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	product, err := noRows(scanProduct(row))
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

// FindProduct fetches a product by natural key. A missing product yields nil, nil.
func (c conn) FindProduct(ctx context.Context, key ProductKey) (*Product, error) {
	row := c.queryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE driver = ? AND product = ? AND tile = ? AND date = ?`,
		key.Driver, key.Product, key.Tile, FormatDate(key.Date),
	)
	product, err := noRows(scanProduct(row))
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	return product, nil
}

// ProductQuery filters ListProducts. Zero values match everything.
type ProductQuery struct {
	Driver   string
	Statuses []WorkStatus
	SchedID  string
	Limit    int
}

// ListProducts returns products matching q ordered by id.
func (c conn) ListProducts(ctx context.Context, q ProductQuery) ([]*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1 = 1`
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
		return nil, fmt.Errorf("list products: %w", err)
	}
	return collectProducts(rows)
}

// ProductDependencies returns the assets a product is derived from.
func (c conn) ProductDependencies(ctx context.Context, productID int64) ([]*Asset, error) {
	rows, err := c.query(ctx,
		`SELECT a.id, a.driver, a.asset_type, a.tile, a.date, a.sensor, a.name, a.status, a.sched_id, a.retry_count, a.updated_at
         FROM assets a JOIN asset_dependencies d ON d.asset_id = a.id
         WHERE d.product_id = ? ORDER BY a.id`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("product dependencies: %w", err)
	}
	return collectAssets(rows)
}

// CountProducts tallies products matching f by status. Every work status is
// present in the result. An empty tile or product list matches nothing.
func (c conn) CountProducts(ctx context.Context, f ProductFilter) (StatusCounts, error) {
	if len(f.Tiles) == 0 || len(f.Products) == 0 {
		return NewStatusCounts(), nil
	}
	var counts StatusCounts
	err := c.traced(ctx, "inventory.CountProducts", []attribute.KeyValue{
		attribute.String("driver", f.Driver),
		attribute.Int("tiles", len(f.Tiles)),
	}, func(ctx context.Context) error {
		query := `SELECT status, COUNT(1) FROM products WHERE driver = ?` +
			` AND product IN (` + makePlaceholders(len(f.Products)) + `)` +
			` AND tile IN (` + makePlaceholders(len(f.Tiles)) + `)`
		args := []any{f.Driver}
		args = append(args, stringArgs(f.Products)...)
		args = append(args, stringArgs(f.Tiles)...)
		if !f.From.IsZero() {
			query += ` AND date >= ?`
			args = append(args, FormatDate(f.From))
		}
		if !f.To.IsZero() {
			query += ` AND date <= ?`
			args = append(args, FormatDate(f.To))
		}
		if f.DayFrom > 0 && f.DayTo > 0 {
			if f.DayFrom <= f.DayTo {
				query += ` AND doy BETWEEN ? AND ?`
			} else {
				// A wrapped window such as 335..31 spans the new year.
				query += ` AND (doy >= ? OR doy <= ?)`
			}
			args = append(args, f.DayFrom, f.DayTo)
		}
		rows, err := c.query(ctx, query+` GROUP BY status`, args...)
		if err != nil {
			return fmt.Errorf("count products: %w", err)
		}
		counts, err = collectCounts(rows)
		return err
	})
	return counts, err
}

// SetProductStatus moves a product to status to.
func (c conn) SetProductStatus(ctx context.Context, id int64, to WorkStatus) error {
	return c.setWorkStatus(ctx, "products", "product", id, to)
}

// MarkProductsScheduled stamps requested products with schedID.
func (c conn) MarkProductsScheduled(ctx context.Context, ids []int64, schedID string) error {
	return c.markScheduled(ctx, "products", ids, schedID)
}

// LockEligibleProducts selects requested products for update whose linked
// assets are all complete. Products without dependencies are eligible.
func (t *Tx) LockEligibleProducts(ctx context.Context) ([]*Product, error) {
	var products []*Product
	err := t.traced(ctx, "inventory.LockEligibleProducts", nil, func(ctx context.Context) error {
		rows, err := t.query(ctx, t.dialect.forUpdate(
			`SELECT `+productColumns+` FROM products p
             WHERE p.status = ?
               AND NOT EXISTS (
                   SELECT 1 FROM asset_dependencies d JOIN assets a ON a.id = d.asset_id
                   WHERE d.product_id = p.id AND a.status <> ?
               )
             ORDER BY p.id`,
		), string(StatusRequested), string(StatusComplete))
		if err != nil {
			return fmt.Errorf("lock eligible products: %w", err)
		}
		products, err = collectProducts(rows)
		return err
	})
	return products, err
}
