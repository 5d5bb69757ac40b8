// Package dbutil provides PostgreSQL connection and migration helpers.
package dbutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultPingAttempts    = 5
	defaultPingBackoff     = 2 * time.Second
)

// PoolConfig configures the database connection pool.
type PoolConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MigrationResult reports the schema state after running migrations.
type MigrationResult struct {
	Version uint
	Dirty   bool
}

// Connect opens a PostgreSQL pool and verifies connectivity, retrying the
// initial ping to ride out database startup.
func Connect(ctx context.Context, cfg PoolConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = defaultConnMaxLifetime
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	var pingErr error
	for attempt := 1; attempt <= defaultPingAttempts; attempt++ {
		pingErr = db.PingContext(ctx)
		if pingErr == nil {
			return db, nil
		}
		if attempt == defaultPingAttempts {
			break
		}

		timer := time.NewTimer(defaultPingBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = db.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	_ = db.Close()
	return nil, fmt.Errorf("pinging database: %w", pingErr)
}

// RunMigrations applies all pending migrations from dir and returns the
// resulting schema version.
func RunMigrations(db *sql.DB, dir string) (MigrationResult, error) {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return MigrationResult{}, fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationResult{}, fmt.Errorf("applying migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationResult{}, fmt.Errorf("reading migration version: %w", err)
	}

	return MigrationResult{Version: version, Dirty: dirty}, nil
}
