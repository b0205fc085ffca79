package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-catalog-server/internal/api"
	"github.com/stacklok/toolhive-catalog-server/internal/app/storage"
	"github.com/stacklok/toolhive-catalog-server/internal/config"
	"github.com/stacklok/toolhive-catalog-server/internal/enrichment"
	"github.com/stacklok/toolhive-catalog-server/internal/filtering"
	"github.com/stacklok/toolhive-catalog-server/internal/httpclient"
	"github.com/stacklok/toolhive-catalog-server/internal/scoring"
	"github.com/stacklok/toolhive-catalog-server/internal/service"
	"github.com/stacklok/toolhive-catalog-server/internal/sources"
	"github.com/stacklok/toolhive-catalog-server/internal/sources/github"
	catalogstore "github.com/stacklok/toolhive-catalog-server/internal/storage"
	pkgsync "github.com/stacklok/toolhive-catalog-server/internal/sync"
	"github.com/stacklok/toolhive-catalog-server/internal/sync/coordinator"
	"github.com/stacklok/toolhive-catalog-server/internal/sync/position"
	"github.com/stacklok/toolhive-catalog-server/internal/sync/writer"
	"github.com/stacklok/toolhive-catalog-server/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	// A forced sync runs within the request, so it gets its own budget.
	syncRequestTimeout = 5 * time.Minute
)

// Tracer names of the instrumented components
const (
	SyncTracerName    = "github.com/stacklok/toolhive-catalog-server/sync"
	WriterTracerName  = "github.com/stacklok/toolhive-catalog-server/sync/writer"
	ServiceTracerName = "github.com/stacklok/toolhive-catalog-server/service"
)

// CatalogAppOptions is a function that configures the catalog app builder
type CatalogAppOptions func(*catalogAppConfig) error

// catalogAppConfig collects the builder inputs. Component overrides exist
// for tests; production defaults are derived from config.
type catalogAppConfig struct {
	config *config.Config

	storageFactory storage.Factory
	searcher       sources.Searcher

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...CatalogAppOptions) (*catalogAppConfig, error) {
	cfg := &catalogAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// NewCatalogApp assembles every component of the catalog server
func NewCatalogApp(
	ctx context.Context,
	opts ...CatalogAppOptions,
) (*CatalogApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.storageFactory == nil {
		cfg.storageFactory, err = storage.NewStorageFactory(ctx, cfg.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	// Ensure cleanup happens on error
	var cleanupNeeded = true
	defer func() {
		if cleanupNeeded {
			cfg.storageFactory.Cleanup()
		}
	}()

	components, err := buildComponents(ctx, cfg)
	if err != nil {
		return nil, err
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	cleanupNeeded = false
	cancelFunc := func() {
		cancel()
		cfg.storageFactory.Cleanup()
	}

	return &CatalogApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancelFunc,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("address is not a valid host:port: %w", err)
		}
		if port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(net.JoinHostPort(host, port)); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStoreFactory allows injecting a custom storage factory (for testing)
func WithStoreFactory(f storage.Factory) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithSearcher replaces the GitHub search client (for testing)
func WithSearcher(s sources.Searcher) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.searcher = s
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for HTTP, sync and cache metrics
func WithMeterProvider(mp metric.MeterProvider) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider
func WithTracerProvider(tp trace.TracerProvider) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler serves h at /metrics
func WithMetricsHandler(h http.Handler) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// buildComponents wires discovery, persistence, sync and the read path
func buildComponents(ctx context.Context, b *catalogAppConfig) (*AppComponents, error) {
	slog.Info("Initializing catalog components")

	store, err := b.storageFactory.CreateStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	aggregator, err := buildAggregator(b)
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery: %w", err)
	}

	syncWriter, err := buildWriter(b, store)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync writer: %w", err)
	}

	svc, err := buildService(b, store, aggregator, syncWriter)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog service: %w", err)
	}

	orchestrator, err := buildOrchestrator(ctx, b, store, aggregator, syncWriter)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}
	// Fresh rows must be visible on the next read.
	orchestrator.OnComplete(func(_ context.Context, _ pkgsync.SyncResult) {
		svc.ClearCache()
	})

	var syncCoordinator coordinator.Coordinator
	if b.config.Sync.IsEnabled() {
		syncCoordinator = coordinator.New(orchestrator,
			coordinator.WithInterval(b.config.Sync.GetInterval()))
	} else {
		slog.Info("Scheduled sync disabled; manual triggers remain available")
	}

	slog.Info("Catalog components initialized successfully")
	return &AppComponents{
		Store:           store,
		SyncManager:     orchestrator,
		SyncCoordinator: syncCoordinator,
		CatalogService:  svc,
	}, nil
}

func buildAggregator(b *catalogAppConfig) (*sources.Aggregator, error) {
	gh := b.config.GitHub
	if b.searcher == nil {
		token, err := gh.GetToken()
		if err != nil {
			return nil, err
		}
		client, err := github.NewClient(github.Options{
			Host:    gh.Host,
			Token:   token,
			Timeout: gh.GetTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub client: %w", err)
		}
		b.searcher = client
	}

	var filter *filtering.Filter
	if gh.Filter != nil {
		var err error
		if filter, err = filtering.New(*gh.Filter); err != nil {
			return nil, err
		}
	}

	return sources.NewAggregator(b.searcher,
		scoring.New(scoring.WithWeights(b.config.GetWeights())),
		sources.AggregatorConfig{
			Queries:        gh.Queries,
			PerPage:        gh.PerPage,
			MaxCatalogSize: gh.MaxCatalogSize,
			Retry:          b.config.Retry.Policy(),
			Filter:         filter,
		}), nil
}

// buildEnricher returns nil when enrichment is off. The heuristic fills
// whatever the oracle leaves empty.
func buildEnricher(cfg *config.Config) (enrichment.Enricher, error) {
	oracle := cfg.Enrichment
	if !cfg.Sync.Enrich && (oracle == nil || !oracle.Enabled) {
		return nil, nil
	}

	heuristic := enrichment.NewHeuristic()
	if oracle == nil || !oracle.Enabled {
		return heuristic, nil
	}

	key, err := oracle.GetAPIKey()
	if err != nil {
		return nil, err
	}
	client := enrichment.NewOracleClient(
		httpclient.NewDefaultClient(oracle.GetTimeout()),
		oracle.Endpoint,
		enrichment.WithAPIKey(key),
	)
	slog.Info("Enrichment oracle enabled", "endpoint", oracle.Endpoint)
	return enrichment.WithFallback(client, heuristic), nil
}

func buildWriter(b *catalogAppConfig, store catalogstore.Store) (writer.SyncWriter, error) {
	enricher, err := buildEnricher(b.config)
	if err != nil {
		return nil, err
	}

	opts := []writer.Option{}
	if enricher != nil {
		opts = append(opts, writer.WithEnricher(enricher))
		if b.config.Enrichment != nil {
			opts = append(opts, writer.WithEnrichTimeout(b.config.Enrichment.GetTimeout()))
		}
	}
	if b.tracerProvider != nil {
		opts = append(opts, writer.WithTracer(b.tracerProvider.Tracer(WriterTracerName)))
	}
	return writer.NewStoreWriter(store, opts...)
}

func buildService(
	b *catalogAppConfig,
	store catalogstore.Store,
	live service.LiveSource,
	w writer.SyncWriter,
) (service.Service, error) {
	strategy, err := service.ParseStrategy(b.config.Service.GetStrategy())
	if err != nil {
		return nil, err
	}

	opts := []service.Option{
		service.WithCacheTTL(b.config.Cache.GetTTL()),
		service.WithFallback(b.config.Service.FallbackEnabled()),
		service.WithDefaultStrategy(strategy),
		service.WithWriter(w),
	}
	if b.meterProvider != nil {
		cacheMetrics, err := telemetry.NewCacheMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache metrics: %w", err)
		}
		opts = append(opts, service.WithCacheMetrics(cacheMetrics))
	}
	if b.tracerProvider != nil {
		opts = append(opts, service.WithTracer(b.tracerProvider.Tracer(ServiceTracerName)))
	}
	return service.New(store, live, opts...)
}

func buildPositionManager(ctx context.Context, cfg *config.Config, store catalogstore.Store) *position.Manager {
	var opts []position.Option
	switch cfg.GetPositionPersistence() {
	case config.PositionPersistenceFile:
		opts = append(opts, position.WithPersistence(position.NewFilePersistence(cfg.Sync.GetPositionFile())))
	case config.PositionPersistenceDatabase:
		opts = append(opts, position.WithPersistence(position.NewStorePersistence(store)))
	}

	pm := position.NewManager(opts...)
	if err := pm.Load(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to restore sync position, starting from the beginning", "error", err)
	}
	return pm
}

func buildOrchestrator(
	ctx context.Context,
	b *catalogAppConfig,
	store catalogstore.Store,
	source pkgsync.Discoverer,
	w writer.SyncWriter,
) (*pkgsync.Orchestrator, error) {
	opts := []pkgsync.Option{
		pkgsync.WithBatchSize(b.config.Sync.GetBatchSize()),
	}

	if wc := b.config.Sync.Window; wc != nil {
		window, err := pkgsync.ParseWindow(wc.Start, wc.End, wc.Location)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pkgsync.WithWindow(window))
		slog.Info("Scheduled sync restricted to window", "window", window.String())
	}

	if b.meterProvider != nil {
		syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
		opts = append(opts, pkgsync.WithSyncMetrics(syncMetrics))
		slog.Info("Sync metrics enabled")
	}
	if b.tracerProvider != nil {
		opts = append(opts, pkgsync.WithTracer(b.tracerProvider.Tracer(SyncTracerName)))
	}

	return pkgsync.NewOrchestrator(store, source, w, buildPositionManager(ctx, b.config, store), opts...)
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *catalogAppConfig,
	components *AppComponents,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			timeoutExceptSync(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Tracing and metrics go first so that they observe every request.
	var outer []func(http.Handler) http.Handler
	if b.tracerProvider != nil {
		outer = append(outer, telemetry.TracingMiddleware(b.tracerProvider))
	}
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		if metricsMiddleware != nil {
			outer = append(outer, metricsMiddleware)
			slog.Info("HTTP metrics middleware enabled")
		}
	}
	b.middlewares = append(outer, b.middlewares...)

	serverOpts := []api.ServerOption{api.WithMiddlewares(b.middlewares...)}
	if b.metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.metricsHandler))
	}
	router := api.NewServer(components.CatalogService, components.SyncManager, serverOpts...)

	writeTimeout := b.writeTimeout
	if writeTimeout < syncRequestTimeout {
		writeTimeout = syncRequestTimeout
	}

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}

// timeoutExceptSync applies the request timeout to every route but the
// forced sync, which gets syncRequestTimeout.
func timeoutExceptSync(d time.Duration) func(http.Handler) http.Handler {
	short := middleware.Timeout(d)
	long := middleware.Timeout(syncRequestTimeout)
	return func(next http.Handler) http.Handler {
		shortH, longH := short(next), long(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && r.URL.Path == "/v1/sync" {
				longH.ServeHTTP(w, r)
				return
			}
			shortH.ServeHTTP(w, r)
		})
	}
}
