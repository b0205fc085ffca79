package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
	"github.com/stacklok/toolhive-catalog-server/internal/storage"
	storagemocks "github.com/stacklok/toolhive-catalog-server/internal/storage/mocks"
	"github.com/stacklok/toolhive-catalog-server/internal/sync/writer"
	writermocks "github.com/stacklok/toolhive-catalog-server/internal/sync/writer/mocks"
	"github.com/stacklok/toolhive-catalog-server/internal/telemetry"
)

// fakeLive is a LiveSource returning canned results.
type fakeLive struct {
	mu    sync.Mutex
	items []catalog.Item
	err   error
	calls int
}

func (f *fakeLive) Discover(context.Context) ([]catalog.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.items, f.err
}

func (f *fakeLive) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func dbItems() []catalog.Item {
	return []catalog.Item{
		{ID: "1", Owner: "acme", Name: "mcp-go", Score: 90},
		{ID: "2", Owner: "acme", Name: "mcp-py", Score: 40},
	}
}

func liveItems() []catalog.Item {
	return []catalog.Item{{ID: "9", Owner: "octo", Name: "live-mcp", Score: 70}}
}

func newTestService(t *testing.T, store storage.Store, live LiveSource, opts ...Option) (Service, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clk.Now), WithCacheTTL(time.Minute)}, opts...)
	svc, err := New(store, live, opts...)
	require.NoError(t, err)
	return svc, clk
}

func TestNew_RequiresStore(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil)
	require.Error(t, err)
}

func TestGetProjects_CacheHitAndExpiry(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := storagemocks.NewMockStore(ctrl)
	store.EXPECT().ListAll(gomock.Any()).Return(dbItems(), nil).Times(2)

	svc, clk := newTestService(t, store, nil)
	ctx := context.Background()

	first := svc.GetProjects(ctx, DatabaseFirst)
	assert.Equal(t, SourceDatabase, first.Source)
	assert.False(t, first.Cached)
	assert.Len(t, first.Items, 2)

	second := svc.GetProjects(ctx, GitHubOnly)
	assert.True(t, second.Cached, "a fresh cache answers every strategy")
	assert.False(t, second.Stale)
	assert.Equal(t, SourceDatabase, second.Source)

	clk.Advance(2 * time.Minute)
	third := svc.GetProjects(ctx, DatabaseOnly)
	assert.False(t, third.Cached)
	assert.Equal(t, clk.Now(), third.CapturedAt)
}

func TestGetProjects_Strategies(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("store down")
	liveErr := errors.New("rate limited")

	tests := []struct {
		name       string
		strategy   Strategy
		fallback   bool
		dbItems    []catalog.Item
		dbErr      error
		live       *fakeLive
		wantSource Source
		wantIDs    []string
		wantLive   int
	}{
		{
			name:       "database-first serves the store",
			strategy:   DatabaseFirst,
			fallback:   true,
			dbItems:    dbItems(),
			live:       &fakeLive{items: liveItems()},
			wantSource: SourceDatabase,
			wantIDs:    []string{"1", "2"},
		},
		{
			name:       "database-first falls through on empty store",
			strategy:   DatabaseFirst,
			fallback:   true,
			live:       &fakeLive{items: liveItems()},
			wantSource: SourceGitHub,
			wantIDs:    []string{"9"},
			wantLive:   1,
		},
		{
			name:       "database-first falls through on store failure",
			strategy:   DatabaseFirst,
			fallback:   true,
			dbErr:      storeErr,
			live:       &fakeLive{items: liveItems()},
			wantSource: SourceGitHub,
			wantIDs:    []string{"9"},
			wantLive:   1,
		},
		{
			name:       "database-first without fallback stays empty",
			strategy:   DatabaseFirst,
			live:       &fakeLive{items: liveItems()},
			wantSource: SourceDatabase,
		},
		{
			name:       "github-first serves live results",
			strategy:   GitHubFirst,
			fallback:   true,
			dbItems:    dbItems(),
			live:       &fakeLive{items: liveItems()},
			wantSource: SourceGitHub,
			wantIDs:    []string{"9"},
			wantLive:   1,
		},
		{
			name:       "github-first falls back to the store",
			strategy:   GitHubFirst,
			fallback:   true,
			dbItems:    dbItems(),
			live:       &fakeLive{err: liveErr},
			wantSource: SourceDatabase,
			wantIDs:    []string{"1", "2"},
			wantLive:   1,
		},
		{
			name:       "database-only never fetches live",
			strategy:   DatabaseOnly,
			fallback:   true,
			dbErr:      storeErr,
			live:       &fakeLive{items: liveItems()},
			wantSource: SourceDatabase,
		},
		{
			name:       "github-only never reads the store",
			strategy:   GitHubOnly,
			fallback:   true,
			live:       &fakeLive{err: liveErr},
			wantSource: SourceGitHub,
			wantLive:   1,
		},
		{
			name:       "github-only without a live source",
			strategy:   GitHubOnly,
			fallback:   true,
			wantSource: SourceGitHub,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			store := storagemocks.NewMockStore(ctrl)
			store.EXPECT().ListAll(gomock.Any()).Return(tt.dbItems, tt.dbErr).AnyTimes()

			var live LiveSource
			if tt.live != nil {
				live = tt.live
			}
			svc, _ := newTestService(t, store, live, WithFallback(tt.fallback))

			res := svc.GetProjects(context.Background(), tt.strategy)
			assert.Equal(t, tt.wantSource, res.Source)
			assert.False(t, res.Cached)
			assert.NotNil(t, res.Items, "results are never nil")

			var ids []string
			for _, it := range res.Items {
				ids = append(ids, it.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			if tt.live != nil {
				assert.Equal(t, tt.wantLive, tt.live.Calls())
			}
		})
	}
}

func TestGetProjects_StaleFallback(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := storagemocks.NewMockStore(ctrl)
	gomock.InOrder(
		store.EXPECT().ListAll(gomock.Any()).Return(dbItems(), nil),
		store.EXPECT().ListAll(gomock.Any()).Return(nil, errors.New("connection refused")),
	)

	svc, clk := newTestService(t, store, nil, WithFallback(false))
	ctx := context.Background()

	fresh := svc.GetProjects(ctx, DatabaseOnly)
	require.Len(t, fresh.Items, 2)
	captured := fresh.CapturedAt

	clk.Advance(10 * time.Minute)
	stale := svc.GetProjects(ctx, DatabaseOnly)
	assert.True(t, stale.Cached)
	assert.True(t, stale.Stale)
	assert.Equal(t, SourceDatabase, stale.Source)
	assert.Equal(t, captured, stale.CapturedAt)
	assert.Len(t, stale.Items, 2)

	// The stale marker lives on the result only; the entry stays expired.
	info := svc.CacheInfo()
	assert.True(t, info.Populated)
	assert.True(t, info.Expired)
}

func TestGetProjects_EmptyWithoutCache(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := storagemocks.NewMockStore(ctrl)
	store.EXPECT().ListAll(gomock.Any()).Return(nil, errors.New("down"))

	svc, _ := newTestService(t, store, &fakeLive{err: errors.New("also down")})

	res := svc.GetProjects(context.Background(), DatabaseFirst)
	assert.Empty(t, res.Items)
	assert.NotNil(t, res.Items)
	assert.Equal(t, SourceGitHub, res.Source)
	assert.False(t, svc.CacheInfo().Populated)
}

func TestGetProjects_PersistsLiveResults(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := storagemocks.NewMockStore(ctrl)
	store.EXPECT().ListAll(gomock.Any()).Return(nil, nil)

	w := writermocks.NewMockSyncWriter(ctrl)
	w.EXPECT().Upsert(gomock.Any(), liveItems()).DoAndReturn(
		func(ctx context.Context, _ []catalog.Item) writer.Counts {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return writer.Counts{Inserted: 1}
		})

	svc, _ := newTestService(t, store, &fakeLive{items: liveItems()},
		WithWriter(w), WithPersistTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	res := svc.GetProjects(ctx, DatabaseFirst)
	// The background write must survive the end of the request.
	cancel()
	svc.Wait()

	assert.Equal(t, SourceGitHub, res.Source)
}

func TestGetProject(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := storagemocks.NewMockStore(ctrl)
	store.EXPECT().ListAll(gomock.Any()).Return(dbItems(), nil)
	store.EXPECT().GetByOwnerName(gomock.Any(), "octo", "other").Return(catalog.Item{ID: "5"}, nil)
	store.EXPECT().GetByOwnerName(gomock.Any(), "nobody", "nothing").Return(catalog.Item{}, storage.ErrNotFound)
	store.EXPECT().GetByOwnerName(gomock.Any(), "broken", "db").Return(catalog.Item{}, errors.New("timeout"))

	svc, _ := newTestService(t, store, nil)
	ctx := context.Background()
	svc.GetProjects(ctx, DatabaseOnly)

	item, err := svc.GetProject(ctx, "ACME", "MCP-Go")
	require.NoError(t, err)
	assert.Equal(t, "1", item.ID, "served from cache")

	item, err = svc.GetProject(ctx, "octo", "other")
	require.NoError(t, err)
	assert.Equal(t, "5", item.ID)

	_, err = svc.GetProject(ctx, "nobody", "nothing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetProject(ctx, "broken", "db")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestClearCacheAndInfo(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := storagemocks.NewMockStore(ctrl)
	store.EXPECT().ListAll(gomock.Any()).Return(dbItems(), nil).Times(2)

	svc, clk := newTestService(t, store, nil)
	ctx := context.Background()

	info := svc.CacheInfo()
	assert.False(t, info.Populated)
	assert.Equal(t, time.Minute, info.TTL)

	svc.GetProjects(ctx, DatabaseFirst)
	clk.Advance(10 * time.Second)

	info = svc.CacheInfo()
	assert.True(t, info.Populated)
	assert.Equal(t, 2, info.Items)
	assert.Equal(t, SourceDatabase, info.Source)
	assert.Equal(t, 10*time.Second, info.Age)
	assert.False(t, info.Expired)

	svc.ClearCache()
	assert.False(t, svc.CacheInfo().Populated)

	res := svc.GetProjects(ctx, DatabaseFirst)
	assert.False(t, res.Cached)
}

func TestCheckReadiness(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := storagemocks.NewMockStore(ctrl)
	gomock.InOrder(
		store.EXPECT().Ping(gomock.Any()).Return(nil),
		store.EXPECT().Ping(gomock.Any()).Return(errors.New("down")),
	)

	svc, _ := newTestService(t, store, nil, WithDefaultStrategy(GitHubFirst))
	require.NoError(t, svc.CheckReadiness(context.Background()))
	require.Error(t, svc.CheckReadiness(context.Background()))
	assert.Equal(t, GitHubFirst, svc.DefaultStrategy())
}

func TestGetProjects_RecordsCacheMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := telemetry.NewCacheMetrics(provider)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	store := storagemocks.NewMockStore(ctrl)
	store.EXPECT().ListAll(gomock.Any()).Return(dbItems(), nil)

	svc, _ := newTestService(t, store, nil, WithCacheMetrics(metrics))
	ctx := context.Background()
	svc.GetProjects(ctx, DatabaseFirst)
	svc.GetProjects(ctx, DatabaseFirst)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				result, _ := dp.Attributes.Value(attribute.Key("result"))
				counts[result.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), counts[lookupMiss])
	assert.Equal(t, int64(1), counts[lookupHit])
}
