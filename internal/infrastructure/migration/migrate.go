// Package migration applies the backend's schema with golang-migrate and
// checks the change-capture prerequisites. The version allocator draws from
// Postgres sequences created by the first migration; a binary started
// against a database missing them would fail on the first tracked write, so
// the schema can be verified up front instead.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Migrator drives schema migrations from a directory of SQL file pairs
type Migrator struct {
	m   *migrate.Migrate
	log *zap.Logger
}

// New creates a Migrator reading migrations from dir
func New(db *sql.DB, dir string, log *zap.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source %s: %w", dir, err)
	}

	return &Migrator{m: m, log: log}, nil
}

// Up applies every pending migration
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.log.Info("schema already up to date")
			return nil
		}
		return fmt.Errorf("migration up failed: %w", err)
	}
	mg.report("schema migrated up")
	return nil
}

// Down rolls every migration back
func (mg *Migrator) Down() error {
	if err := mg.m.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.log.Info("no migrations to roll back")
			return nil
		}
		return fmt.Errorf("migration down failed: %w", err)
	}
	mg.log.Info("all migrations rolled back")
	return nil
}

// Steps applies n migrations; negative n rolls back
func (mg *Migrator) Steps(n int) error {
	if err := mg.m.Steps(n); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.log.Info("schema already up to date")
			return nil
		}
		return fmt.Errorf("migration of %d steps failed: %w", n, err)
	}
	mg.report("schema stepped")
	return nil
}

// To migrates up or down until the schema is at the given version
func (mg *Migrator) To(version uint) error {
	if err := mg.m.Migrate(version); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.log.Info("schema already at version", zap.Uint("version", version))
			return nil
		}
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	mg.report("schema migrated to version")
	return nil
}

// Version reports the current schema version and whether it is dirty. A
// pristine database reports version 0.
func (mg *Migrator) Version() (uint, bool, error) {
	version, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, dirty, nil
}

// Force overwrites the recorded schema version without running any SQL. It
// exists to clear a dirty flag after a manually repaired failure.
func (mg *Migrator) Force(version int) error {
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("failed to force schema version %d: %w", version, err)
	}
	mg.log.Warn("schema version forced", zap.Int("version", version))
	return nil
}

// Drop destroys every object in the database
func (mg *Migrator) Drop() error {
	if err := mg.m.Drop(); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}
	mg.log.Warn("schema dropped")
	return nil
}

// Close releases the migration source and database handles
func (mg *Migrator) Close() error {
	sourceErr, dbErr := mg.m.Close()
	if sourceErr != nil {
		return fmt.Errorf("failed to close migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("failed to close migration database handle: %w", dbErr)
	}
	return nil
}

func (mg *Migrator) report(msg string) {
	version, dirty, err := mg.m.Version()
	if err != nil {
		mg.log.Info(msg)
		return
	}
	mg.log.Info(msg, zap.Uint("version", version), zap.Bool("dirty", dirty))
}

// Schema objects change capture cannot run without. The allocator draws ids
// from the sequences; the recorder and the sync services write the tables.
var syncSchemaObjects = []string{
	"change_version_seq",
	"tombstone_id_seq",
	"change_log",
	"tombstones",
	"audit_log",
	"sync_sessions",
	"sync_conflicts",
}

// VerifySyncSchema checks that every sequence and table the sync subsystem
// depends on exists, and names the first one missing.
func VerifySyncSchema(ctx context.Context, db *sql.DB) error {
	for _, name := range syncSchemaObjects {
		var regclass sql.NullString
		err := db.QueryRowContext(ctx, "SELECT to_regclass($1)", name).Scan(&regclass)
		if err != nil {
			return fmt.Errorf("failed to check schema object %s: %w", name, err)
		}
		if !regclass.Valid {
			return fmt.Errorf("schema object %s is missing; run migrations before starting", name)
		}
	}
	return nil
}
