package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", SessionID(ctx))
	assert.Equal(t, "", Operation(ctx))

	ctx = WithSessionID(ctx, "sess-123")
	ctx = WithOperation(ctx, "reorganize")

	assert.Equal(t, "sess-123", SessionID(ctx))
	assert.Equal(t, "reorganize", Operation(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithIDs(context.Background(), "sess-abc", "apply_actionable")
	LogWith(ctx, logger).Info("candidate accepted")

	output := buf.String()
	assert.Contains(t, output, "session_id=sess-abc")
	assert.Contains(t, output, "operation=apply_actionable")
	assert.Contains(t, output, "candidate accepted")
}

func TestLogWithMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogWith(WithSessionID(context.Background(), "sess-only"), logger).Info("partial")

	output := buf.String()
	assert.Contains(t, output, "session_id=sess-only")
	assert.NotContains(t, output, "operation")
}

func TestLogWithNilLogger(t *testing.T) {
	assert.NotNil(t, LogWith(context.Background(), nil))
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	ctx := WithIDs(context.Background(), "sess-auto", "undo")
	logger.InfoContext(ctx, "auto inject")

	output := buf.String()
	assert.Contains(t, output, `"session_id":"sess-auto"`)
	assert.Contains(t, output, `"operation":"undo"`)
}

func TestCorrelationHandlerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "bare log")

	output := buf.String()
	assert.NotContains(t, output, "session_id")
	assert.NotContains(t, output, "operation")
	assert.Contains(t, output, "bare log")
}

func TestCorrelationHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))).
		With(slog.String("component", "engine")).
		WithGroup("g")

	logger.InfoContext(WithSessionID(context.Background(), "s1"), "grouped", slog.Int("n", 1))

	output := buf.String()
	assert.Contains(t, output, `"component":"engine"`)
	assert.Contains(t, output, `"session_id":"s1"`)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn, "json")

	logger.Info("hidden")
	logger.WarnContext(WithOperation(context.Background(), "initialize"), "shown")

	output := buf.String()
	assert.NotContains(t, output, "hidden")
	assert.Contains(t, output, `"operation":"initialize"`)

	buf.Reset()
	New(&buf, slog.LevelInfo, "text").Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
