package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
	"github.com/stacklok/toolhive-catalog-server/internal/otel"
	"github.com/stacklok/toolhive-catalog-server/internal/storage"
	"github.com/stacklok/toolhive-catalog-server/internal/sync/writer"
	"github.com/stacklok/toolhive-catalog-server/internal/telemetry"
)

const (
	// DefaultCacheTTL is used when no TTL is configured
	DefaultCacheTTL = 5 * time.Minute

	// DefaultPersistTimeout bounds the background write of live results
	DefaultPersistTimeout = 2 * time.Minute

	// ServiceTracerName is the name of the read path tracer
	ServiceTracerName = "github.com/stacklok/toolhive-catalog-server/service"
)

// Cache lookup outcomes recorded in metrics.
const (
	lookupHit   = "hit"
	lookupMiss  = "miss"
	lookupStale = "stale"
	lookupEmpty = "empty"
)

// LiveSource performs a full live discovery.
type LiveSource interface {
	Discover(ctx context.Context) ([]catalog.Item, error)
}

// readFunc reads the catalog from one origin.
type readFunc func(ctx context.Context) ([]catalog.Item, Source, error)

type catalogService struct {
	store           storage.Store
	live            LiveSource
	writer          writer.SyncWriter
	cache           *catalogCache
	fallback        bool
	defaultStrategy Strategy
	persistTimeout  time.Duration
	metrics         *telemetry.CacheMetrics
	tracer          trace.Tracer

	handlers map[Strategy]readFunc
	inflight sync.WaitGroup
}

// Option configures the catalog service.
type Option func(*catalogService)

// WithCacheTTL sets how long a read stays fresh.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *catalogService) {
		if ttl > 0 {
			s.cache.ttl = ttl
		}
	}
}

// WithFallback enables or disables falling through *-first strategies.
func WithFallback(enabled bool) Option {
	return func(s *catalogService) {
		s.fallback = enabled
	}
}

// WithDefaultStrategy sets the strategy returned by DefaultStrategy.
func WithDefaultStrategy(strategy Strategy) Option {
	return func(s *catalogService) {
		s.defaultStrategy = strategy
	}
}

// WithWriter persists live results in the background.
func WithWriter(w writer.SyncWriter) Option {
	return func(s *catalogService) {
		s.writer = w
	}
}

// WithPersistTimeout bounds every background persistence.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *catalogService) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// WithCacheMetrics records cache lookups.
func WithCacheMetrics(m *telemetry.CacheMetrics) Option {
	return func(s *catalogService) {
		s.metrics = m
	}
}

// WithTracer sets the tracer for read spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *catalogService) {
		s.tracer = t
	}
}

// WithClock overrides the clock used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *catalogService) {
		s.cache.now = now
	}
}

// Service is the CatalogService implementation returned by New. Wait blocks
// until background persistence has finished.
type Service interface {
	CatalogService
	Wait()
}

// New creates the catalog service. live may be nil, in which case the
// GitHub strategies always come up empty.
func New(store storage.Store, live LiveSource, opts ...Option) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	s := &catalogService{
		store:           store,
		live:            live,
		fallback:        true,
		defaultStrategy: DatabaseFirst,
		persistTimeout:  DefaultPersistTimeout,
	}
	s.cache = newCatalogCache(DefaultCacheTTL, time.Now)
	for _, opt := range opts {
		opt(s)
	}
	s.handlers = map[Strategy]readFunc{
		DatabaseFirst: s.chain(s.readDatabase, s.readLive),
		GitHubFirst:   s.chain(s.readLive, s.readDatabase),
		DatabaseOnly:  s.readDatabase,
		GitHubOnly:    s.readLive,
	}
	return s, nil
}

// CheckReadiness implements CatalogService.
func (s *catalogService) CheckReadiness(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("catalog store not reachable: %w", err)
	}
	return nil
}

// DefaultStrategy implements CatalogService.
func (s *catalogService) DefaultStrategy() Strategy {
	return s.defaultStrategy
}

// GetProjects implements CatalogService.
func (s *catalogService) GetProjects(ctx context.Context, strategy Strategy) Result {
	ctx, span := otel.StartSpan(ctx, s.tracer, "service.GetProjects",
		trace.WithAttributes(otel.AttrStrategy.String(strategy.String())))
	defer span.End()

	entry, fresh, cached := s.cache.get()
	if cached && fresh {
		s.metrics.RecordLookup(ctx, lookupHit, string(entry.source))
		span.SetAttributes(otel.AttrCacheOutcome.String(lookupHit), otel.AttrResultCount.Int(len(entry.items)))
		return Result{
			Items:      slices.Clone(entry.items),
			Source:     entry.source,
			Cached:     true,
			CapturedAt: entry.capturedAt,
		}
	}

	read, ok := s.handlers[strategy]
	if !ok {
		read = s.handlers[s.defaultStrategy]
	}

	items, source, err := read(ctx)
	if err == nil && len(items) > 0 {
		captured := s.cache.set(items, source)
		s.metrics.RecordLookup(ctx, lookupMiss, string(source))
		span.SetAttributes(
			otel.AttrCacheOutcome.String(lookupMiss),
			otel.AttrSource.String(string(source)),
			otel.AttrResultCount.Int(len(items)))
		return Result{Items: items, Source: source, CapturedAt: captured}
	}
	if err != nil {
		otel.RecordError(span, err)
		slog.WarnContext(ctx, "Catalog read failed",
			"strategy", strategy.String(),
			"error", err)
	}

	if cached {
		slog.WarnContext(ctx, "Serving expired catalog cache",
			"strategy", strategy.String(),
			"captured_at", entry.capturedAt,
			"items", len(entry.items))
		s.metrics.RecordLookup(ctx, lookupStale, string(entry.source))
		span.SetAttributes(otel.AttrCacheOutcome.String(lookupStale), otel.AttrResultCount.Int(len(entry.items)))
		return Result{
			Items:      slices.Clone(entry.items),
			Source:     entry.source,
			Cached:     true,
			Stale:      true,
			CapturedAt: entry.capturedAt,
		}
	}

	s.metrics.RecordLookup(ctx, lookupEmpty, string(SourceNone))
	span.SetAttributes(otel.AttrCacheOutcome.String(lookupEmpty), otel.AttrResultCount.Int(0))
	if source == "" {
		source = SourceNone
	}
	return Result{Items: []catalog.Item{}, Source: source}
}

// chain reads primary and, when fallback is enabled, secondary if primary
// failed or came up empty.
func (s *catalogService) chain(primary, secondary readFunc) readFunc {
	return func(ctx context.Context) ([]catalog.Item, Source, error) {
		items, source, err := primary(ctx)
		if err == nil && len(items) > 0 {
			return items, source, nil
		}
		if !s.fallback {
			return items, source, err
		}
		slog.DebugContext(ctx, "Primary catalog source unavailable, falling back",
			"primary", source,
			"error", err)
		items2, source2, err2 := secondary(ctx)
		if err2 != nil {
			return nil, source2, errors.Join(err, err2)
		}
		return items2, source2, nil
	}
}

func (s *catalogService) readDatabase(ctx context.Context) ([]catalog.Item, Source, error) {
	items, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, SourceDatabase, fmt.Errorf("failed to read catalog from store: %w", err)
	}
	return items, SourceDatabase, nil
}

func (s *catalogService) readLive(ctx context.Context) ([]catalog.Item, Source, error) {
	if s.live == nil {
		return nil, SourceGitHub, nil
	}
	items, err := s.live.Discover(ctx)
	if err != nil {
		return nil, SourceGitHub, fmt.Errorf("live discovery failed: %w", err)
	}
	if len(items) > 0 {
		s.persist(ctx, items)
	}
	return items, SourceGitHub, nil
}

// persist writes live results in the background. The write outlives the
// request that triggered it but is bounded by persistTimeout.
func (s *catalogService) persist(ctx context.Context, items []catalog.Item) {
	if s.writer == nil {
		return
	}
	batch := slices.Clone(items)
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		counts := s.writer.Upsert(bg, batch)
		slog.InfoContext(bg, "Persisted live catalog results",
			"inserted", counts.Inserted,
			"updated", counts.Updated,
			"skipped", counts.Skipped,
			"errors", counts.Errors)
	}()
}

// Wait blocks until background persistence has finished.
func (s *catalogService) Wait() {
	s.inflight.Wait()
}

// GetProject implements CatalogService.
func (s *catalogService) GetProject(ctx context.Context, owner, name string) (catalog.Item, error) {
	key := catalog.Key(owner, name)
	ctx, span := otel.StartSpan(ctx, s.tracer, "service.GetProject",
		trace.WithAttributes(otel.AttrProjectKey.String(key)))
	defer span.End()

	if entry, fresh, ok := s.cache.get(); ok && fresh {
		for _, item := range entry.items {
			if item.Key() == key {
				return item, nil
			}
		}
	}

	item, err := s.store.GetByOwnerName(ctx, owner, name)
	if errors.Is(err, storage.ErrNotFound) {
		return catalog.Item{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		otel.RecordError(span, err)
		return catalog.Item{}, fmt.Errorf("failed to get project %s: %w", key, err)
	}
	return item, nil
}

// ClearCache implements CatalogService.
func (s *catalogService) ClearCache() {
	s.cache.clear()
	slog.Debug("Catalog cache cleared")
}

// CacheInfo implements CatalogService.
func (s *catalogService) CacheInfo() CacheInfo {
	return s.cache.info()
}
