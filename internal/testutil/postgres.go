//go:build integration

package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/idxstock/stockapi/internal/repository"
)

// NewTestRepository returns a migrated, empty database. DATABASE_URL is used
// when set; otherwise a disposable Postgres container is started.
func NewTestRepository(t *testing.T) (context.Context, *repository.Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = startPostgres(t, ctx)
	}

	if err := repository.Migrate(dbURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo, err := repository.New(ctx, dbURL, repository.Options{})
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	if _, err := repo.Pool().Exec(ctx, `TRUNCATE api_usage, stock_history, stocks, users CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return ctx, repo
}

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stockapi_test"),
		tcpostgres.WithUsername("stockapi"),
		tcpostgres.WithPassword("stockapi"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	return connStr
}
