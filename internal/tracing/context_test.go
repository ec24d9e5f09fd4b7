package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithUserID(ctx, "user-1")
	ctx = WithRequestID(ctx, "req-1")

	tc := FromContext(ctx)
	assert.Equal(t, "trace-1", tc.TraceID)
	assert.Equal(t, "run-1", tc.RunID)
	assert.Equal(t, "user-1", tc.UserID)
	assert.Equal(t, "req-1", tc.RequestID)
}

func TestGettersOnEmptyContext(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetRunID(ctx))
	assert.Empty(t, GetUserID(ctx))
	assert.Empty(t, GetRequestID(ctx))
}

func TestNewRequestContext(t *testing.T) {
	t.Run("with request id", func(t *testing.T) {
		ctx := NewRequestContext(context.Background(), "req-42")
		assert.NotEmpty(t, GetTraceID(ctx))
		assert.Equal(t, "req-42", GetRequestID(ctx))
	})

	t.Run("without request id", func(t *testing.T) {
		ctx := NewRequestContext(context.Background(), "")
		assert.NotEmpty(t, GetTraceID(ctx))
		assert.Empty(t, GetRequestID(ctx))
	})
}

func TestLoggerFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	base := zerolog.New(buf)

	ctx := WithRunID(WithTraceID(context.Background(), "trace-9"), "run-9")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "trace-9", fields["trace_id"])
	assert.Equal(t, "run-9", fields["run_id"])
	assert.NotContains(t, fields, "user_id")
}

func TestStartSpanPropagatesTraceID(t *testing.T) {
	require.NoError(t, InitOpenTelemetry(context.Background(), Config{ServiceName: "trackd-test"}))

	ctx, span := StartSpan(context.Background(), "trackd.test", "test.span")
	defer span.End()

	assert.NotEmpty(t, GetTraceID(ctx))
}
