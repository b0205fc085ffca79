package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// newTestTracerProvider creates a tracer provider with in-memory exporter for testing.
func newTestTracerProvider(t *testing.T) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp
}

func newProjectRouter(mw func(http.Handler) http.Handler, status int) http.Handler {
	r := chi.NewRouter()
	r.Use(mw)
	r.Get("/v1/projects/{owner}/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestNewHTTPMetrics_NilProvider(t *testing.T) {
	t.Parallel()

	metrics, err := NewHTTPMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, metrics)

	mw, err := MetricsMiddleware(nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	newProjectRouter(mw, http.StatusOK).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHTTPMetrics_RecordsRoutePattern(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	mw, err := MetricsMiddleware(mp)
	require.NoError(t, err)
	router := newProjectRouter(mw, http.StatusNotFound)

	for range 2 {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/projects/acme/tool", nil))
		require.Equal(t, http.StatusNotFound, rr.Code)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total metricdata.Sum[int64]
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "thv_catalog_http_requests_total" {
				total = m.Data.(metricdata.Sum[int64])
			}
		}
	}
	require.Len(t, total.DataPoints, 1)
	dp := total.DataPoints[0]
	assert.Equal(t, int64(2), dp.Value)

	route, _ := dp.Attributes.Value("route")
	assert.Equal(t, "/v1/projects/{owner}/{name}", route.AsString())
	status, _ := dp.Attributes.Value("status_code")
	assert.Equal(t, "404", status.AsString())
}

func TestTracingMiddleware_NilProvider(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	newProjectRouter(TracingMiddleware(nil), http.StatusOK).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/projects/a/b", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestTracingMiddleware_Spans(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		wantStatus codes.Code
	}{
		{name: "success", status: http.StatusOK, wantStatus: codes.Ok},
		{name: "client error", status: http.StatusNotFound, wantStatus: codes.Error},
		{name: "server error", status: http.StatusServiceUnavailable, wantStatus: codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exporter, tp := newTestTracerProvider(t)
			router := newProjectRouter(TracingMiddleware(tp), tt.status)

			req := httptest.NewRequest(http.MethodGet, "/v1/projects/acme/tool", nil)
			req.Header.Set("User-Agent", "catalog-test/1.0")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			span := spans[0]
			assert.Equal(t, "GET /v1/projects/{owner}/{name}", span.Name)
			assert.Equal(t, tt.wantStatus, span.Status.Code)

			attrs := make(map[string]any)
			for _, a := range span.Attributes {
				attrs[string(a.Key)] = a.Value.AsInterface()
			}
			assert.Equal(t, "/v1/projects/acme/tool", attrs[string(semconv.URLPathKey)])
			assert.Equal(t, "/v1/projects/{owner}/{name}", attrs[string(semconv.HTTPRouteKey)])
			assert.Equal(t, int64(tt.status), attrs[string(semconv.HTTPResponseStatusCodeKey)])
			assert.Equal(t, "catalog-test/1.0", attrs[string(semconv.UserAgentOriginalKey)])
		})
	}
}

func TestTracingMiddleware_SkipsProbeRoutes(t *testing.T) {
	t.Parallel()

	exporter, tp := newTestTracerProvider(t)
	router := newProjectRouter(TracingMiddleware(tp), http.StatusOK)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, exporter.GetSpans())
}

func TestTruncateUserAgent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "curl/8", truncateUserAgent("curl/8"))
	exact := strings.Repeat("a", MaxUserAgentLength)
	assert.Equal(t, exact, truncateUserAgent(exact))
	assert.Equal(t, exact, truncateUserAgent(exact+"overflow"))
}
