package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tclog "github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type nopLogger struct{}

func (*nopLogger) Printf(_ string, _ ...any) {}

var _ tclog.Logger = (*nopLogger)(nil)

const (
	testDBName = "catalog"
	testDBUser = "catalog"
	testDBPass = "catalog"
)

// SetupTestDBContainer starts a Postgres container and returns its
// connection string. The test is skipped when no container runtime is
// available.
func SetupTestDBContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	tc.SkipIfProviderIsNotHealthy(t)

	container, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(testDBName),
		postgres.WithUsername(testDBUser),
		postgres.WithPassword(testDBPass),
		postgres.BasicWaitStrategies(),
		tc.WithLogger(&nopLogger{}),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return connString, func() {
		tc.CleanupContainer(t, container)
	}
}

// SetupTestDB starts a Postgres container with all migrations applied.
func SetupTestDB(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	connString, cleanup := SetupTestDBContainer(t, ctx)
	require.NoError(t, MigrateUp(ctx, connString))
	return connString, cleanup
}
