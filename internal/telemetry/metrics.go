// Package telemetry provides OpenTelemetry instrumentation for the catalog server.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/stacklok/toolhive-catalog-server/sync"

	// CacheMetricsMeterName is the name used for the catalog cache meter
	CacheMetricsMeterName = "github.com/stacklok/toolhive-catalog-server/cache"
)

// Upsert outcomes recorded by RecordItems.
const (
	OutcomeInserted = "inserted"
	OutcomeUpdated  = "updated"
	OutcomeSkipped  = "skipped"
	OutcomeErrored  = "errors"
)

// SyncMetrics holds the OpenTelemetry instruments for sync cycles
type SyncMetrics struct {
	cycleDuration metric.Float64Histogram
	cyclesTotal   metric.Int64Counter
	itemsTotal    metric.Int64Counter
	cursor        metric.Int64Gauge
	catalogSize   metric.Int64Gauge
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	cycleDuration, err := meter.Float64Histogram(
		"thv_catalog_sync_duration_seconds",
		metric.WithDescription("Duration of sync cycles in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	cyclesTotal, err := meter.Int64Counter(
		"thv_catalog_sync_cycles_total",
		metric.WithDescription("Number of sync cycles by outcome"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	itemsTotal, err := meter.Int64Counter(
		"thv_catalog_sync_items_total",
		metric.WithDescription("Number of items processed by upsert outcome"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	cursor, err := meter.Int64Gauge(
		"thv_catalog_sync_cursor_position",
		metric.WithDescription("Last processed index of the circular sync cursor"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	catalogSize, err := meter.Int64Gauge(
		"thv_catalog_known_items",
		metric.WithDescription("Number of items in the last discovered ranking"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		cycleDuration: cycleDuration,
		cyclesTotal:   cyclesTotal,
		itemsTotal:    itemsTotal,
		cursor:        cursor,
		catalogSize:   catalogSize,
	}, nil
}

// RecordCycle records the duration and outcome of one sync cycle
func (m *SyncMetrics) RecordCycle(ctx context.Context, duration time.Duration, success bool, forced bool) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("success", success),
		attribute.Bool("forced", forced),
	)
	m.cycleDuration.Record(ctx, duration.Seconds(), attrs)
	m.cyclesTotal.Add(ctx, 1, attrs)
}

// RecordItems adds count items under the given upsert outcome
func (m *SyncMetrics) RecordItems(ctx context.Context, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.itemsTotal.Add(ctx, int64(count), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordPosition records the cursor index and the size of the known catalog
func (m *SyncMetrics) RecordPosition(ctx context.Context, lastProcessed, totalKnown int) {
	if m == nil {
		return
	}
	m.cursor.Record(ctx, int64(lastProcessed))
	m.catalogSize.Record(ctx, int64(totalKnown))
}

// CacheMetrics holds the OpenTelemetry instruments for the read-path cache
type CacheMetrics struct {
	lookups metric.Int64Counter
}

// NewCacheMetrics creates a new CacheMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewCacheMetrics(provider metric.MeterProvider) (*CacheMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	lookups, err := provider.Meter(CacheMetricsMeterName).Int64Counter(
		"thv_catalog_cache_lookups_total",
		metric.WithDescription("Catalog reads by cache result (hit, miss, stale)"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	return &CacheMetrics{lookups: lookups}, nil
}

// RecordLookup records one cache lookup with its result and the source that served it
func (m *CacheMetrics) RecordLookup(ctx context.Context, result, source string) {
	if m == nil {
		return
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("source", source),
	))
}
