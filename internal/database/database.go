package database

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/ZerkerEOD/folderport/internal/db"
	"github.com/ZerkerEOD/folderport/pkg/debug"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

/*
 * Connect opens the transfer journal database and applies any pending
 * migrations before returning.
 *
 * Parameters:
 *   - ctx: bounds the connection attempt
 *   - dsn: lib/pq connection string or postgres:// URL
 *
 * Returns:
 *   - *db.DB: ready-to-use connection pool
 *   - error: connection or migration failure
 */
func Connect(ctx context.Context, dsn string) (*db.DB, error) {
	debug.Info("Connecting to transfer journal database")

	conn, err := db.New(ctx, dsn)
	if err != nil {
		debug.Error("Failed to connect to journal database: %v", err)
		return nil, err
	}

	if err := RunMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	debug.Info("Transfer journal database ready")
	return conn, nil
}

/*
 * RunMigrations executes all pending migrations embedded in the binary.
 * Returns nil when the schema is already current.
 */
func RunMigrations(conn *db.DB) error {
	debug.Info("Starting database migrations")

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := postgres.WithInstance(conn.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		debug.Error("Migration failed: %v", err)
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		debug.Info("Database schema at version %d (dirty: %v)", version, dirty)
	}
	return nil
}

// Migrations exposes the embedded migration files
func Migrations() embed.FS {
	return migrationFiles
}
