// Package testutil starts the container-backed databases storage tests run
// against.
package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/sharronesofer/visual-dm-sub028/internal/config"
	"github.com/sharronesofer/visual-dm-sub028/internal/storage/postgres"
	"github.com/sharronesofer/visual-dm-sub028/migrations"
)

const postgresImage = "postgres:16-alpine"

// PostgresContainer is a migrated PostgreSQL instance shared by every test
// in one test binary. Tests isolate themselves by using distinct combat IDs.
// The testcontainers reaper removes the container when the binary exits.
type PostgresContainer struct {
	Pool   *postgres.Pool
	Config config.DatabaseConfig
}

var (
	sharedOnce sync.Once
	shared     *PostgresContainer
	sharedErr  error
)

// Postgres returns the shared migrated container, starting it on first use.
// The test is skipped under -short.
//
// Precondition: Docker must be available.
// Postcondition: Returns a connected container or fails the test.
func Postgres(t *testing.T) *PostgresContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in -short mode")
	}
	sharedOnce.Do(func() {
		shared, sharedErr = startPostgres(context.Background())
	})
	if sharedErr != nil {
		t.Fatalf("postgres container: %v", sharedErr)
	}
	return shared
}

func startPostgres(ctx context.Context) (*PostgresContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "combat_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, err
	}
	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "test",
		Password:        "test",
		Name:            "combat_test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	if err := migrateUp(cfg.DSN()); err != nil {
		return nil, err
	}
	pool, err := postgres.NewPool(ctx, cfg, zap.NewNop())
	if err != nil {
		return nil, err
	}
	return &PostgresContainer{Pool: pool, Config: cfg}, nil
}

func migrateUp(dsn string) error {
	m, err := migrations.NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
