// Package testutil provides shared helpers for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/apiforge-io/apiforge-apps/internal/dbutil"
)

const testPostgresImage = "postgres:16-alpine"

// NewTestPostgres starts a disposable PostgreSQL container, creates the apps
// schema, applies migrations from migrationsDir, and returns an open pool.
// The container is terminated when the test finishes.
func NewTestPostgres(t *testing.T, migrationsDir string) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, testPostgresImage,
		tcpostgres.WithDatabase("apps"),
		tcpostgres.WithUsername("apps"),
		tcpostgres.WithPassword("apps"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("reading postgres connection string: %v", err)
	}

	db, err := dbutil.Connect(ctx, dbutil.PoolConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("connecting to test postgres: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS apps"); err != nil {
		t.Fatalf("creating apps schema: %v", err)
	}
	if _, err := dbutil.RunMigrations(db, migrationsDir); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	return db
}
