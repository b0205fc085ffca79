// Package telemetry sets up OpenTelemetry tracing and metrics for the catalog
// server: OTLP/HTTP exporters, an optional Prometheus scrape endpoint, and
// the HTTP and sync instruments recorded against them.
package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/stacklok/toolhive-catalog-server/internal/versions"
)

const (
	// DefaultServiceName is reported when serviceName is not configured
	DefaultServiceName = "thv-catalog-api"

	// DefaultEndpoint is the OTLP/HTTP collector address
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling is the trace sampling ratio when none is configured
	DefaultSampling = 0.05
)

// Config is the telemetry section of the server configuration. Nothing is
// exported unless Enabled is set and the signal's own section is enabled.
type Config struct {
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"serviceName,omitempty"`
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the collector's "host:port"; the exporters add the
	// /v1/traces and /v1/metrics paths.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure sends OTLP over plain HTTP
	Insecure bool `yaml:"insecure,omitempty"`

	// Headers are added to every OTLP export request, typically a
	// collector API key
	Headers map[string]string `yaml:"headers,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig configures span export
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the ratio of root traces kept, in [0, 1]
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig configures metric export
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Prometheus serves the metrics on the API server's /metrics route
	Prometheus bool `yaml:"prometheus,omitempty"`

	// DisableOTLP leaves only the Prometheus endpoint. Requires Prometheus.
	DisableOTLP bool `yaml:"disableOtlp,omitempty"`
}

// GetServiceName returns the configured service name or DefaultServiceName
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the configured version or the binary's version
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion == "" {
		return versions.Version
	}
	return c.ServiceVersion
}

// GetEndpoint returns the configured endpoint or DefaultEndpoint
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

// GetSampling returns the sampling ratio. Zero cannot be told apart from
// "unset" in YAML and maps to DefaultSampling.
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == 0 {
		return DefaultSampling
	}
	return c.Sampling
}

// Validate checks an enabled configuration. A nil or disabled one is valid.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if c.Endpoint != "" {
		if strings.Contains(c.Endpoint, "://") {
			errs = append(errs, fmt.Errorf("endpoint must be host:port without a scheme, got %q", c.Endpoint))
		} else if _, _, err := net.SplitHostPort(c.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("endpoint must be host:port: %w", err))
		}
	}
	for k := range c.Headers {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, errors.New("headers: empty header name"))
			break
		}
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	return errors.Join(errs...)
}

// Validate checks the sampling ratio
func (c *TracingConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.Sampling < 0 || c.Sampling > 1 {
		return fmt.Errorf("sampling must be between 0.0 and 1.0, got %f", c.Sampling)
	}
	return nil
}

// Validate checks that at least one exporter remains enabled
func (c *MetricsConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.DisableOTLP && !c.Prometheus {
		return errors.New("disableOtlp requires prometheus to be enabled")
	}
	return nil
}

// Collector is the OTLP destination shared by the trace and metric exporters
type Collector struct {
	Endpoint string
	Insecure bool
	Headers  map[string]string
}

// Collector returns the export destination described by c
func (c *Config) Collector() Collector {
	return Collector{
		Endpoint: c.GetEndpoint(),
		Insecure: c.Insecure,
		Headers:  c.Headers,
	}
}
