package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
)

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		prefixed string
		plain    string
		want     zapcore.Level
	}{
		{name: "default", want: zapcore.InfoLevel},
		{name: "prefixed debug", prefixed: "debug", want: zapcore.DebugLevel},
		{name: "plain fallback", plain: "error", want: zapcore.ErrorLevel},
		{name: "prefixed wins", prefixed: "warn", plain: "debug", want: zapcore.WarnLevel},
		{name: "invalid", prefixed: "loud", want: zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("THV_CATALOG_LOG_LEVEL", tt.prefixed)
			t.Setenv("LOG_LEVEL", tt.plain)
			assert.Equal(t, tt.want, getLogLevel())
		})
	}
}

func TestTraceHandler_InjectsSpanContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(&traceHandler{Handler: slog.NewJSONHandler(&buf, nil)})

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	logger.With("component", "test").InfoContext(ctx, "hello")
	assert.Contains(t, buf.String(), `"trace_id":"0102030405060708090a0b0c0d0e0f10"`)
	assert.Contains(t, buf.String(), `"span_id":"0102030405060708"`)
	assert.Contains(t, buf.String(), `"component":"test"`)

	buf.Reset()
	logger.InfoContext(context.Background(), "no span")
	assert.NotContains(t, buf.String(), "trace_id")
}
