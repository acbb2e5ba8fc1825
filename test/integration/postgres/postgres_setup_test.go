//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/config"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func runTestWithSetup(t *testing.T, testFunc func(t *testing.T)) {
	dsn := SetupPostgresTestInstance(t)
	config.Set(config.DATABASE_TYPE, config.DATABASE_TYPE_POSTGRES)
	config.Set(config.DATABASE_URL, dsn)
	testFunc(t)
}

func SetupPostgresTestInstance(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("error starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("error reading postgres connection string: %v", err)
	}
	return dsn
}
