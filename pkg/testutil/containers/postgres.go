//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Postgres is a throwaway Postgres instance for integration tests.
type Postgres struct {
	URL  string
	Pool *pgxpool.Pool
}

// NewPostgres starts a Postgres container, applies the given schema, and
// returns a connected pool. The container is terminated when the test
// finishes.
func NewPostgres(t *testing.T, schema string) *Postgres {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("vigil_test"),
		tcpostgres.WithUsername("vigil"),
		tcpostgres.WithPassword("vigil"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if schema != "" {
		if _, err := pool.Exec(ctx, schema); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return &Postgres{URL: url, Pool: pool}
}
