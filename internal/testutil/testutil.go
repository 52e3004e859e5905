// Package testutil provides shared test infrastructure: migrated in-memory
// SQLite stores for unit tests and a Postgres container for integration tests.
//
// Usage in TestMain:
//
//	func TestMain(m *testing.M) {
//	    flag.Parse()
//	    if !testing.Short() {
//	        tc, err := testutil.StartPostgres(context.Background())
//	        ...
//	        defer tc.Terminate()
//	    }
//	    os.Exit(m.Run())
//	}
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ashita-ai/tracecrud/internal/storage"
	"github.com/ashita-ai/tracecrud/migrations"
)

// TestContainer wraps a testcontainers container with a DSN for connecting.
type TestContainer struct {
	Container testcontainers.Container
	DSN       string
}

// StartPostgres starts a Postgres container and waits until it accepts
// connections.
func StartPostgres(ctx context.Context) (*TestContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "tracecrud",
			"POSTGRES_PASSWORD": "tracecrud",
			"POSTGRES_DB":       "tracecrud",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("testutil: start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("testutil: container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("testutil: container port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://tracecrud:tracecrud@%s:%s/tracecrud?sslmode=disable", host, port.Port())
	return &TestContainer{Container: container, DSN: dsn}, nil
}

// MustStartPostgres is StartPostgres for TestMain: it exits the process on failure.
func MustStartPostgres() *TestContainer {
	tc, err := StartPostgres(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	return tc
}

// NewTestStore connects a Postgres store to this container and runs all migrations.
func (tc *TestContainer) NewTestStore(ctx context.Context, logger *slog.Logger) (*storage.Postgres, error) {
	store, err := storage.NewPostgres(ctx, tc.DSN, 4, logger)
	if err != nil {
		return nil, fmt.Errorf("testutil: create store: %w", err)
	}
	if err := Migrate(ctx, store, logger); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// Migrate applies the embedded migrations for the store's dialect.
func Migrate(ctx context.Context, store storage.Store, logger *slog.Logger) error {
	dir, err := migrations.For(store.System())
	if err != nil {
		return fmt.Errorf("testutil: %w", err)
	}
	if err := storage.RunMigrations(ctx, store, dir, logger); err != nil {
		return fmt.Errorf("testutil: run migrations: %w", err)
	}
	return nil
}

// NewSQLiteStore returns a migrated in-memory SQLite store that is closed
// when the test ends.
func NewSQLiteStore(t testing.TB) *storage.SQLite {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLite(ctx, "file::memory:?_pragma=foreign_keys(1)", 1)
	if err != nil {
		t.Fatalf("testutil: open sqlite: %v", err)
	}
	t.Cleanup(store.Close)
	if err := Migrate(ctx, store, TestLogger()); err != nil {
		t.Fatalf("%v", err)
	}
	return store
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
