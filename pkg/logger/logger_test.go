package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"
)

func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, getLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, getLogLevel("warning"))
	assert.Equal(t, slog.LevelError, getLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, getLogLevel("nonsense"))
}

func TestOperationalAlertIsTagged(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, slog.LevelDebug)

	log.LogOperationalAlert(context.Background(), "Refund outcome dead-lettered", errors.New("boom"), map[string]interface{}{
		"refund_id": "r-1",
	})

	line := buf.String()
	assert.Equal(t, "ERROR", gjson.Get(line, "level").String())
	assert.True(t, gjson.Get(line, "alert").Bool())
	assert.Equal(t, "boom", gjson.Get(line, "error").String())
	assert.Equal(t, "r-1", gjson.Get(line, "refund_id").String())
}

func TestWithTraceAddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, slog.LevelDebug)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	log.LogRefundOutcome(ctx, "r-1", "b-1", "SUCCEEDED", "re_1")
	assert.Equal(t, traceID.String(), gjson.Get(buf.String(), "trace_id").String())
	assert.Equal(t, "SUCCEEDED", gjson.Get(buf.String(), "outcome").String())

	buf.Reset()
	log.LogRefundOutcome(context.Background(), "r-1", "b-1", "FAILED", "declined")
	assert.False(t, gjson.Get(buf.String(), "trace_id").Exists())
}

func TestProviderCallLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, slog.LevelInfo)

	log.LogProviderCall(context.Background(), "stripe", "r-1", 0, nil)
	assert.Empty(t, buf.String(), "successful calls log at debug")

	log.LogProviderCall(context.Background(), "stripe", "r-1", 0, errors.New("timeout"))
	assert.Equal(t, "WARN", gjson.Get(buf.String(), "level").String())
}
