package writer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
	"github.com/stacklok/toolhive-catalog-server/internal/enrichment"
	"github.com/stacklok/toolhive-catalog-server/internal/storage"
	"github.com/stacklok/toolhive-catalog-server/internal/storage/mocks"
	"github.com/stacklok/toolhive-catalog-server/internal/storage/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func item(id, name string, stars int) catalog.Item {
	return catalog.Item{
		ID:          id,
		Name:        name,
		Owner:       "acme",
		URL:         "https://github.com/acme/" + name,
		Description: "MCP server " + name,
		Stars:       stars,
		Language:    "Go",
		Topics:      []string{"MCP", "go"},
		CreatedAt:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2025, 2, 1, 12, 30, 0, 123456789, time.UTC),
		Score:       60,
		Tier:        catalog.TierMedium,
	}
}

func TestNewStoreWriter_RequiresStore(t *testing.T) {
	t.Parallel()

	_, err := NewStoreWriter(nil)
	require.Error(t, err)
}

func TestStoreWriter_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	w, err := NewStoreWriter(store)
	require.NoError(t, err)

	batch := []catalog.Item{item("1", "alpha", 10), item("2", "beta", 20)}

	first := w.Upsert(ctx, batch)
	assert.Equal(t, Counts{Inserted: 2}, first)

	before, err := store.ListAll(ctx)
	require.NoError(t, err)

	second := w.Upsert(ctx, batch)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 0, second.Errors)

	after, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.False(t, Changed(before[i], after[i]))
	}
}

func TestStoreWriter_ChangeDiffOnlyAtDebug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		level    slog.Level
		wantDiff bool
	}{
		{name: "info", level: slog.LevelInfo, wantDiff: false},
		{name: "debug", level: slog.LevelDebug, wantDiff: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: tt.level}))

			w, err := NewStoreWriter(newStore(t), WithLogger(logger))
			require.NoError(t, err)

			require.Equal(t, 1, w.Upsert(ctx, []catalog.Item{item("1", "alpha", 10)}).Inserted)
			require.Equal(t, 1, w.Upsert(ctx, []catalog.Item{item("1", "alpha", 11)}).Updated)

			if tt.wantDiff {
				assert.Contains(t, buf.String(), "Catalog item changed")
				assert.Contains(t, buf.String(), "diff=")
			} else {
				assert.NotContains(t, buf.String(), "Catalog item changed")
			}
		})
	}
}

func TestStoreWriter_PreservesEnrichment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	w, err := NewStoreWriter(store)
	require.NoError(t, err)

	enriched := item("1", "alpha", 10)
	enriched.Enrichment = catalog.Enrichment{
		Summary:     "stored summary",
		KeyFeatures: []string{"tools"},
	}
	require.Equal(t, 1, w.Upsert(ctx, []catalog.Item{enriched}).Inserted)

	rediscovered := item("1", "alpha", 99)
	counts := w.Upsert(ctx, []catalog.Item{rediscovered})
	assert.Equal(t, 1, counts.Updated)

	got, err := store.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 99, got.Stars)
	assert.Equal(t, "stored summary", got.Enrichment.Summary)
	assert.Equal(t, []string{"tools"}, got.Enrichment.KeyFeatures)

	// A non-empty incoming value replaces only its own field.
	replaced := item("1", "alpha", 99)
	replaced.Enrichment = catalog.Enrichment{Summary: "new summary"}
	assert.Equal(t, 1, w.Upsert(ctx, []catalog.Item{replaced}).Updated)

	got, err = store.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "new summary", got.Enrichment.Summary)
	assert.Equal(t, []string{"tools"}, got.Enrichment.KeyFeatures)
}

func TestStoreWriter_Enricher(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	var calls atomic.Int32
	oracle := enrichment.EnricherFunc(func(_ context.Context, it catalog.Item) (catalog.Enrichment, error) {
		calls.Add(1)
		if it.ID == "2" {
			return catalog.Enrichment{}, errors.New("oracle unavailable")
		}
		return catalog.Enrichment{Summary: "summary of " + it.Name}, nil
	})

	w, err := NewStoreWriter(store, WithEnricher(oracle), WithEnrichTimeout(time.Second))
	require.NoError(t, err)

	counts := w.Upsert(ctx, []catalog.Item{item("1", "alpha", 1), item("2", "beta", 1)})
	assert.Equal(t, Counts{Inserted: 2}, counts, "enrichment failures are never item errors")
	assert.Equal(t, int32(2), calls.Load())

	got, err := store.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "summary of alpha", got.Enrichment.Summary)

	got, err = store.GetByID(ctx, "2")
	require.NoError(t, err)
	assert.True(t, got.Enrichment.IsEmpty())

	// Only the item still lacking enrichment is sent again.
	counts = w.Upsert(ctx, []catalog.Item{item("1", "alpha", 1), item("2", "beta", 1)})
	assert.Equal(t, 2, counts.Skipped)
	assert.Equal(t, int32(3), calls.Load())
}

func TestStoreWriter_IsolatesItemErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	w, err := NewStoreWriter(store)
	require.NoError(t, err)

	bad := item("bad", "broken", 1)
	bad.Stars = -1
	noID := item("", "anonymous", 1)

	counts := w.Upsert(ctx, []catalog.Item{
		item("1", "alpha", 1),
		bad,
		noID,
		item("1", "alpha", 1),
		item("2", "beta", 1),
	})
	assert.Equal(t, 2, counts.Inserted)
	assert.Equal(t, 1, counts.Skipped)
	assert.Equal(t, 2, counts.Errors)
	assert.Len(t, counts.ErrorDetails, 2)
	assert.Equal(t, 5, counts.Total())

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStoreWriter_LookupFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	store.EXPECT().GetByID(gomock.Any(), "1").Return(catalog.Item{}, errors.New("connection reset"))
	store.EXPECT().GetByID(gomock.Any(), "2").Return(catalog.Item{}, storage.ErrNotFound)
	store.EXPECT().UpsertBatch(gomock.Any(), gomock.Len(1)).Return(nil)

	w, err := NewStoreWriter(store)
	require.NoError(t, err)

	counts := w.Upsert(context.Background(), []catalog.Item{item("1", "alpha", 1), item("2", "beta", 1)})
	assert.Equal(t, 1, counts.Inserted)
	assert.Equal(t, 1, counts.Errors)
	assert.Contains(t, counts.ErrorDetails[0], "connection reset")
}

func TestStoreWriter_BatchFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	store.EXPECT().GetByID(gomock.Any(), gomock.Any()).Return(catalog.Item{}, storage.ErrNotFound).Times(2)
	store.EXPECT().UpsertBatch(gomock.Any(), gomock.Any()).Return([]storage.ItemError{
		{ID: "1", Err: errors.New("commit failed")},
		{ID: "2", Err: errors.New("commit failed")},
	})

	w, err := NewStoreWriter(store)
	require.NoError(t, err)

	counts := w.Upsert(context.Background(), []catalog.Item{item("1", "alpha", 1), item("2", "beta", 1)})
	assert.Equal(t, 0, counts.Inserted)
	assert.Equal(t, 2, counts.Errors)
}

func TestStoreWriter_Empty(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	w, err := NewStoreWriter(mocks.NewMockStore(ctrl))
	require.NoError(t, err)
	assert.Equal(t, Counts{}, w.Upsert(context.Background(), nil))
}
