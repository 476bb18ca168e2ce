package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// Migrator applies the dedup schema migrations (publications, imports,
// authorships, duplicate and non-duplicate groups) from the migrations
// directory. It reuses the service's pgx pool through a database/sql
// adapter because golang-migrate drives a *sql.DB.
type Migrator struct {
	migrate *migrate.Migrate
	sqlDB   *sql.DB
	logger  zerolog.Logger
}

// NewMigrator builds a Migrator on top of an open DB. migrationsPath must
// point at the directory holding the numbered .up.sql/.down.sql pairs.
// The returned Migrator owns a *sql.DB handle and must be closed.
func NewMigrator(db *DB, migrationsPath string, logger zerolog.Logger) (*Migrator, error) {
	if db == nil || db.pool == nil {
		return nil, fmt.Errorf("migrator needs an open database connection")
	}
	if migrationsPath == "" {
		return nil, fmt.Errorf("migrations path is required")
	}
	if _, err := os.Stat(migrationsPath); err != nil {
		return nil, fmt.Errorf("migrations path %q: %w", migrationsPath, err)
	}

	sqlDB := stdlib.OpenDBFromPool(db.pool)
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("opening migration source: %w", err)
	}

	return &Migrator{migrate: m, sqlDB: sqlDB, logger: logger}, nil
}

// Up applies every pending migration. An already current schema is not an
// error.
func (m *Migrator) Up() error {
	m.logger.Info().Msg("applying schema migrations")
	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info().Msg("schema already current")
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}
	m.logger.Info().Msg("schema migrations applied")
	return nil
}

// Down rolls the schema all the way back. This drops every dedup table,
// so it is only meant for development databases.
func (m *Migrator) Down() error {
	m.logger.Warn().Msg("rolling back all schema migrations")
	if err := m.migrate.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info().Msg("nothing to roll back")
			return nil
		}
		return fmt.Errorf("rolling back migrations: %w", err)
	}
	m.logger.Info().Msg("schema migrations rolled back")
	return nil
}

// Steps moves the schema n migrations forward (n > 0) or backward (n < 0).
func (m *Migrator) Steps(n int) error {
	m.logger.Info().Int("steps", n).Msg("stepping schema migrations")
	if err := m.migrate.Steps(n); err != nil {
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			m.logger.Info().Msg("schema already current")
			return nil
		case errors.Is(err, os.ErrNotExist):
			// Stepped past the last available migration.
			m.logger.Info().Msg("no further migrations in that direction")
			return nil
		}
		return fmt.Errorf("stepping migrations: %w", err)
	}
	return nil
}

// Version reports the current schema version and whether the last
// migration left the schema dirty.
func (m *Migrator) Version() (uint, bool, error) {
	return m.migrate.Version()
}

// Force records the given version without running any migration. Use it
// to clear a dirty flag after fixing a failed migration by hand.
func (m *Migrator) Force(version int) error {
	m.logger.Warn().Int("version", version).Msg("forcing schema version")
	return m.migrate.Force(version)
}

// DropAll removes every object in the connected database, including the
// migration bookkeeping table. Development and test databases only.
func (m *Migrator) DropAll() error {
	m.logger.Warn().Msg("dropping all database objects")
	return m.migrate.Drop()
}

// Close releases the migration source and the *sql.DB adapter. The
// underlying pgx pool stays open; it belongs to the DB that built the
// Migrator.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if m.sqlDB != nil {
		if err := m.sqlDB.Close(); err != nil && dbErr == nil {
			dbErr = err
		}
	}
	if sourceErr != nil {
		return fmt.Errorf("closing migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing migration database handle: %w", dbErr)
	}
	return nil
}
