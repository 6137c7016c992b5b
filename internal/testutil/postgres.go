// Package testutil starts the PostgreSQL container used by integration tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pesio-ai/be-erp-approvals/internal/database"
	"github.com/pesio-ai/be-erp-approvals/internal/logger"
)

// Postgres is a migrated database running in a container.
type Postgres struct {
	Container *postgres.PostgresContainer
	DB        *database.DB
	ConnStr   string
}

// StartPostgres runs a PostgreSQL container and applies the migrations. The
// test is skipped under -short or when no container runtime is available.
func StartPostgres(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("approvals_test"),
		postgres.WithUsername("approvals_test"),
		postgres.WithPassword("approvals_test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	db, err := database.New(ctx, database.Config{URL: connStr, MaxConns: 20})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx, logger.Nop().Logger); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return &Postgres{Container: container, DB: db, ConnStr: connStr}
}

// Exec runs setup SQL and fails the test on error.
func (p *Postgres) Exec(t *testing.T, sql string, args ...any) {
	t.Helper()
	if _, err := p.DB.Exec(context.Background(), sql, args...); err != nil {
		t.Fatalf("setup statement failed: %v", err)
	}
}
