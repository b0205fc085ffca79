package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Telemetry owns the tracer and meter providers of the process and, when
// Prometheus exposition is on, the registry behind /metrics.
type Telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	promRegistry   *prometheus.Registry
}

// New builds the providers described by cfg. A nil or disabled cfg yields
// no-op providers. Call Shutdown before exit to flush pending exports.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if cfg == nil || !cfg.Enabled {
		slog.Debug("Telemetry disabled")
		return &Telemetry{
			tracerProvider: tracenoop.NewTracerProvider(),
			meterProvider:  metricnoop.NewMeterProvider(),
		}, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	name, version, collector := cfg.GetServiceName(), cfg.GetServiceVersion(), cfg.Collector()
	slog.Info("Initializing telemetry",
		"service_name", name,
		"service_version", version,
		"endpoint", collector.Endpoint)

	tracerProvider, err := NewTracerProvider(ctx,
		WithTracerServiceName(name),
		WithTracerServiceVersion(version),
		WithTracingConfig(cfg.Tracing),
		WithTracerCollector(collector),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}

	meterOpts := []MeterProviderOption{
		WithMeterServiceName(name),
		WithMeterServiceVersion(version),
		WithMetricsConfig(cfg.Metrics),
		WithMeterCollector(collector),
	}

	var promRegistry *prometheus.Registry
	if m := cfg.Metrics; m != nil && m.Enabled && m.Prometheus {
		promRegistry = prometheus.NewRegistry()
		promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		meterOpts = append(meterOpts, WithPrometheusRegisterer(promRegistry))
	}

	meterProvider, err := NewMeterProvider(ctx, meterOpts...)
	if err != nil {
		if tp, ok := tracerProvider.(*sdktrace.TracerProvider); ok {
			_ = tp.Shutdown(ctx)
		}
		return nil, fmt.Errorf("failed to create meter provider: %w", err)
	}

	return &Telemetry{
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
		promRegistry:   promRegistry,
	}, nil
}

// TracerProvider returns the tracer provider
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// MeterProvider returns the meter provider
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// Enabled reports whether either provider exports anything.
func (t *Telemetry) Enabled() bool {
	if t == nil {
		return false
	}
	_, tracing := t.tracerProvider.(*sdktrace.TracerProvider)
	_, metrics := t.meterProvider.(*sdkmetric.MeterProvider)
	return tracing || metrics
}

// MetricsHandler serves the Prometheus registry, or returns nil when
// Prometheus exposition is off.
func (t *Telemetry) MetricsHandler() http.Handler {
	if t == nil || t.promRegistry == nil {
		return nil
	}
	return promhttp.HandlerFor(t.promRegistry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the SDK providers. Safe to call more than once.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if tp, ok := t.tracerProvider.(*sdktrace.TracerProvider); ok {
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}
	if mp, ok := t.meterProvider.(*sdkmetric.MeterProvider); ok {
		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	slog.Debug("Telemetry shutdown complete")
	return nil
}
