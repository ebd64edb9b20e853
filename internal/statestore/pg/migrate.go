package pg

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ResolveMigrationsDir mirrors the daemon's flag-then-env-then-default
// resolution order: an explicit dir wins, then AGENTWORKER_MIGRATIONS_DIR,
// then a "migrations" directory next to the running executable.
func ResolveMigrationsDir(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv("AGENTWORKER_MIGRATIONS_DIR"); v != "" {
		return v
	}
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

// NewMigrator opens a golang-migrate instance over the given migrations
// directory and Postgres DSN.
func NewMigrator(dir, dsn string) (*migrate.Migrate, error) {
	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return nil, fmt.Errorf("statestore/pg: create migrator: %w", err)
	}
	return m, nil
}

// Migrate runs every pending migration against dsn using the migration
// files read from dir on disk (see ResolveMigrationsDir for how the
// directory is located at runtime).
func Migrate(dir, dsn string) error {
	m, err := NewMigrator(dir, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("statestore/pg: migrate up: %w", err)
	}
	return nil
}
