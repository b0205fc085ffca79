package database

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMigrateURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", toMigrateURL("postgres://u:p@h:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://u@h/db", toMigrateURL("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://already", toMigrateURL("pgx5://already"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestMigrations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	connString, cleanup := SetupTestDBContainer(t, ctx)
	t.Cleanup(cleanup)

	require.NoError(t, MigrateUp(ctx, connString))
	version, dirty, err := GetVersion(connString)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.EqualValues(t, 1, version)

	require.NoError(t, MigrateDown(ctx, connString, 0))
	version, _, err = GetVersion(connString)
	require.NoError(t, err)
	assert.EqualValues(t, 0, version)

	// Applying twice is a no-op.
	require.NoError(t, MigrateUp(ctx, connString))
	require.NoError(t, MigrateUp(ctx, connString))
}
