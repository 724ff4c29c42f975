package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithSource(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "text")
	WithSource("scheduler", "github-status").Info("poll completed", "fetched", 3)

	out := buf.String()
	assert.Contains(t, out, "component=scheduler")
	assert.Contains(t, out, "source=github-status")
	assert.Contains(t, out, "fetched=3")
}

func TestFromContext_AddsRequestID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "info", "json")
	ctx := WithRequestID(context.Background(), "req-42")
	FromContext(ctx).Debug("hidden")
	FromContext(ctx).Info("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"request_id":"req-42"`)
	assert.Equal(t, "req-42", RequestID(ctx))
}
