package inventory

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationFS embed.FS

// SchemaVersion is the newest migration version shipped with the binary.
const SchemaVersion = 1

// ErrSchemaMismatch indicates the database was left dirty by a failed migration
// or is newer than this binary.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	source, err := iofs.New(migrationFS, "migrations/"+s.dialect.name)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	var driver database.Driver
	switch s.dialect.name {
	case sqliteDialect.name:
		driver, err = migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	case postgresDialect.name:
		driver, err = migratepgx.WithInstance(s.db, &migratepgx.Config{})
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedBackend, s.dialect.name)
	}
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, s.dialect.name, driver)
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	return m, nil
}

// applyMigrations brings the schema up to date. The migrate instance is not
// closed since that would close the shared *sql.DB.
func (s *Store) applyMigrations(_ context.Context) error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty || version != SchemaVersion {
		return fmt.Errorf("%w: database has version %d (dirty=%t), expected %d",
			ErrSchemaMismatch, version, dirty, SchemaVersion)
	}
	return nil
}
