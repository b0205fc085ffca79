package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
	"github.com/stacklok/toolhive-catalog-server/internal/storage"
)

func newMemoryStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	s, err := Open(context.Background(), MemoryPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func sampleItem(id, owner, name string, score, stars int) catalog.Item {
	return catalog.Item{
		ID:          id,
		Name:        name,
		FullName:    owner + "/" + name,
		Owner:       owner,
		URL:         "https://github.com/" + owner + "/" + name,
		Description: "desc " + name,
		Stars:       stars,
		Forks:       1,
		Language:    "Go",
		Topics:      []string{"mcp"},
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Score:       score,
		Tier:        catalog.TierMedium,
	}
}

func TestStore_UpsertAndRead(t *testing.T) {
	t.Parallel()

	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := first
	s := newMemoryStore(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	item := sampleItem("1", "Acme", "mcp-go", 80, 300)
	item.Enrichment = catalog.Enrichment{Summary: "a server", KeyFeatures: []string{"fast"}}

	require.Empty(t, s.UpsertBatch(ctx, []catalog.Item{item}))

	got, err := s.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, item.Name, got.Name)
	assert.Equal(t, item.Topics, got.Topics)
	assert.Equal(t, item.Enrichment, got.Enrichment)
	assert.Equal(t, catalog.TierMedium, got.Tier)
	assert.True(t, item.UpdatedAt.Equal(got.UpdatedAt))
	assert.True(t, first.Equal(got.FirstSeenAt))
	assert.True(t, first.Equal(got.LastSyncedAt))

	byName, err := s.GetByOwnerName(ctx, "acme", "MCP-GO")
	require.NoError(t, err)
	assert.Equal(t, "1", byName.ID)

	// Re-upsert later: first-seen survives, last-synced moves.
	clock = first.Add(time.Hour)
	item.Stars = 400
	item.FirstSeenAt = time.Time{}
	require.Empty(t, s.UpsertBatch(ctx, []catalog.Item{item}))

	got, err = s.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 400, got.Stars)
	assert.True(t, first.Equal(got.FirstSeenAt))
	assert.True(t, clock.Equal(got.LastSyncedAt))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_NotFound(t *testing.T) {
	t.Parallel()

	s := newMemoryStore(t)
	ctx := context.Background()

	_, err := s.GetByID(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetByOwnerName(ctx, "nobody", "nothing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ListAllOrdered(t *testing.T) {
	t.Parallel()

	s := newMemoryStore(t)
	ctx := context.Background()

	require.Empty(t, s.UpsertBatch(ctx, []catalog.Item{
		sampleItem("a", "o", "a", 10, 5),
		sampleItem("b", "o", "b", 90, 1),
		sampleItem("c", "o", "c", 10, 50),
	}))

	items, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "b", items[0].ID)
	assert.Equal(t, "c", items[1].ID)
	assert.Equal(t, "a", items[2].ID)
}

func TestStore_UpsertBatchIsolatesItemErrors(t *testing.T) {
	t.Parallel()

	s := newMemoryStore(t)
	ctx := context.Background()

	bad := sampleItem("bad", "o", "bad", 1, 1)
	bad.Stars = -5
	noID := sampleItem("", "o", "noid", 1, 1)

	errs := s.UpsertBatch(ctx, []catalog.Item{
		sampleItem("ok1", "o", "ok1", 1, 1),
		bad,
		noID,
		sampleItem("ok2", "o", "ok2", 1, 1),
	})
	require.Len(t, errs, 2)
	assert.Equal(t, "bad", errs[0].ID)
	assert.Equal(t, "", errs[1].ID)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_Position(t *testing.T) {
	t.Parallel()

	s := newMemoryStore(t)
	ctx := context.Background()

	_, ok, err := s.LoadPosition(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	rec := storage.PositionRecord{
		LastProcessedIndex: 9,
		TotalKnown:         40,
		LastSyncTime:       time.Date(2025, 5, 5, 5, 5, 5, 0, time.UTC),
		SyncCount:          3,
		IsComplete:         true,
	}
	require.NoError(t, s.SavePosition(ctx, rec))
	rec.SyncCount = 4
	require.NoError(t, s.SavePosition(ctx, rec))

	got, ok, err := s.LoadPosition(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 9, got.LastProcessedIndex)
	assert.Equal(t, 40, got.TotalKnown)
	assert.Equal(t, 4, got.SyncCount)
	assert.True(t, got.IsComplete)
	assert.True(t, rec.LastSyncTime.Equal(got.LastSyncTime))
}

func TestOpen_FileDatabase(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "catalog.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))
	require.Empty(t, s.UpsertBatch(ctx, []catalog.Item{sampleItem("1", "o", "n", 1, 1)}))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer func() {
		_ = reopened.Close()
	}()
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
