package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"datahandler/internal/config"
)

const tracerName = "datahandler/internal/inventory"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn holds the operations shared by Store and Tx.
type conn struct {
	q       querier
	dialect dialect
	tracer  trace.Tracer
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.dialect.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.dialect.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.dialect.rebind(query), args...)
}

// traced wraps a store operation in a client span.
func (c conn) traced(ctx context.Context, spanName string, attrs []attribute.KeyValue, op func(ctx context.Context) error) error {
	ctx, span := c.tracer.Start(
		ctx,
		spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, attribute.String("db.system", c.dialect.name))...),
	)
	defer span.End()

	if err := op(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Store persists jobs, assets, products, dependencies, and post-process
// chunks in SQLite or PostgreSQL.
type Store struct {
	conn
	db   *sql.DB
	pool *pgxpool.Pool
	path string
}

// Tx is a store transaction. Selection methods prefixed with Lock are only
// available here.
type Tx struct {
	conn
	tx *sql.Tx
}

// Open connects to the backend named in the configuration and applies migrations.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		return OpenSQLite(ctx, cfg.Store.SQLitePath)
	case config.StorePostgres:
		return OpenPostgres(ctx, cfg.Store.DSN, cfg.Store.MaxConns)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Store.Backend)
	}
}

// OpenSQLite opens (creating if needed) a SQLite database at path. Write
// transactions begin IMMEDIATE so claims serialize on the database lock.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	query := url.Values{}
	query.Set("_txlock", "immediate")
	query.Add("_pragma", "busy_timeout(5000)")
	query.Add("_pragma", "foreign_keys(1)")
	query.Add("_pragma", "journal_mode(WAL)")
	dsn := "file:" + path + "?" + query.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{
		conn: conn{q: db, dialect: sqliteDialect, tracer: otel.Tracer(tracerName)},
		db:   db,
		path: path,
	}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OpenPostgres connects a pgx pool to dsn and exposes it through database/sql.
func OpenPostgres(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return openPostgresPool(ctx, pool)
}

func openPostgresPool(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	db := stdlib.OpenDBFromPool(pool)
	store := &Store{
		conn: conn{q: db, dialect: postgresDialect, tracer: otel.Tracer(tracerName)},
		db:   db,
		pool: pool,
	}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Backend returns the dialect name of the store ("sqlite" or "postgres").
func (s *Store) Backend() string {
	return s.dialect.name
}

// Path returns the SQLite database path, or "" for PostgreSQL.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// WithTx runs fn inside a write transaction, committing when fn returns nil
// and rolling back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	var sqlTx *sql.Tx
	if err := retryOnBusy(ctx, func() error {
		var beginErr error
		sqlTx, beginErr = s.db.BeginTx(ctx, nil)
		return beginErr
	}); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	tx := &Tx{conn: conn{q: sqlTx, dialect: s.dialect, tracer: s.tracer}, tx: sqlTx}
	if err := fn(tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
