package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		target   string
		insecure bool
		wantErr  bool
	}{
		{name: "bare host port", endpoint: "localhost:4317", target: "localhost:4317", insecure: true},
		{name: "http scheme", endpoint: "http://collector:4317", target: "collector:4317", insecure: true},
		{name: "https drops path", endpoint: "https://collector:4317/v1/traces", target: "collector:4317", insecure: false},
		{name: "surrounding space", endpoint: "  otel:4317 ", target: "otel:4317", insecure: true},
		{name: "missing host", endpoint: "http://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, insecure, err := parseEndpoint(tt.endpoint)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.target, target)
			assert.Equal(t, tt.insecure, insecure)
		})
	}
}

func TestNewTracerProvider_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	tp, err := NewTracerProvider(ctx, Config{ServiceName: "trackd-test"})
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(ctx) }()

	// Spans are still sampled so trace ids reach the logs.
	_, span := tp.Tracer("test").Start(ctx, "op")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.SpanContext().IsSampled())
}

func TestNewTracerProvider_WithEndpoint(t *testing.T) {
	ctx := context.Background()
	// The gRPC exporter connects lazily, so no collector is needed here.
	tp, err := NewTracerProvider(ctx, Config{
		ServiceName: "trackd-test",
		Endpoint:    "https://127.0.0.1:4317",
		Insecure:    true,
	})
	require.NoError(t, err)
	require.NotNil(t, tp)

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	assert.NoError(t, tp.Shutdown(shutdownCtx))
}

func TestNewTracerProvider_InvalidEndpoint(t *testing.T) {
	_, err := NewTracerProvider(context.Background(), Config{ServiceName: "trackd-test", Endpoint: "http://"})
	assert.ErrorContains(t, err, "missing host")
}

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx := context.Background()

	_, span := tp.Tracer("test").Start(ctx, "ok")
	RecordError(span, nil)
	span.End()

	_, span = tp.Tracer("test").Start(ctx, "failed")
	RecordError(span, assert.AnError)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, assert.AnError.Error(), ended[1].Status().Description)
	require.Len(t, ended[1].Events(), 1)
}
