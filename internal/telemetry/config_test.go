package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-catalog-server/internal/versions"
)

func TestConfig_Getters(t *testing.T) {
	t.Parallel()

	empty := &Config{}
	assert.Equal(t, DefaultServiceName, empty.GetServiceName())
	assert.Equal(t, versions.Version, empty.GetServiceVersion())
	assert.Equal(t, DefaultEndpoint, empty.GetEndpoint())

	set := &Config{
		ServiceName:    "catalog",
		ServiceVersion: "v1.2.3",
		Endpoint:       "otel:4318",
	}
	assert.Equal(t, "catalog", set.GetServiceName())
	assert.Equal(t, "v1.2.3", set.GetServiceVersion())
	assert.Equal(t, "otel:4318", set.GetEndpoint())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr string
	}{
		{
			name:   "nil config is valid",
			config: nil,
		},
		{
			name: "disabled config skips nested validation",
			config: &Config{
				Enabled: false,
				Tracing: &TracingConfig{Enabled: true, Sampling: 5},
			},
		},
		{
			name: "valid full config",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: 0.5},
				Metrics: &MetricsConfig{Enabled: true, Prometheus: true},
			},
		},
		{
			name:    "endpoint with scheme",
			config:  &Config{Enabled: true, Endpoint: "http://otel:4318"},
			wantErr: "without a scheme",
		},
		{
			name:    "endpoint without port",
			config:  &Config{Enabled: true, Endpoint: "otel"},
			wantErr: "endpoint must be host:port",
		},
		{
			name:    "empty header name",
			config:  &Config{Enabled: true, Headers: map[string]string{" ": "x"}},
			wantErr: "empty header name",
		},
		{
			name: "invalid sampling",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: -1},
			},
			wantErr: "tracing: sampling must be between",
		},
		{
			name: "otlp disabled without prometheus",
			config: &Config{
				Enabled: true,
				Metrics: &MetricsConfig{Enabled: true, DisableOTLP: true},
			},
			wantErr: "metrics: disableOtlp requires prometheus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.config.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTracingConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *TracingConfig
		wantErr bool
	}{
		{name: "nil", config: nil},
		{name: "disabled ignores sampling", config: &TracingConfig{Sampling: 2}},
		{name: "full sampling", config: &TracingConfig{Enabled: true, Sampling: 1.0}},
		{name: "unset sampling", config: &TracingConfig{Enabled: true}},
		{name: "above one", config: &TracingConfig{Enabled: true, Sampling: 1.1}, wantErr: true},
		{name: "negative", config: &TracingConfig{Enabled: true, Sampling: -0.1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestMetricsConfig_Validate(t *testing.T) {
	t.Parallel()

	var nilCfg *MetricsConfig
	require.NoError(t, nilCfg.Validate())
	require.NoError(t, (&MetricsConfig{DisableOTLP: true}).Validate())
	require.NoError(t, (&MetricsConfig{Enabled: true, Prometheus: true, DisableOTLP: true}).Validate())
	require.Error(t, (&MetricsConfig{Enabled: true, DisableOTLP: true}).Validate())
}

func TestTracingConfig_GetSampling(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultSampling, (&TracingConfig{Enabled: true}).GetSampling())
	assert.Equal(t, 0.5, (&TracingConfig{Enabled: true, Sampling: 0.5}).GetSampling())
	assert.Equal(t, 1.0, (&TracingConfig{Enabled: true, Sampling: 1.0}).GetSampling())
}
