package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsentry/netsentry/internal/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestNewFormats(t *testing.T) {
	require.NotNil(t, New(slog.LevelInfo, "json"))
	require.NotNil(t, New(slog.LevelDebug, "text"))
	require.NotNil(t, New(slog.LevelInfo, ""))
}

func TestWithContext(t *testing.T) {
	log := New(slog.LevelInfo, "json")

	// Without a request ID the underlying logger is returned as-is.
	assert.Same(t, log.Logger, log.WithContext(context.Background()))

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-123")
	assert.NotSame(t, log.Logger, log.WithContext(ctx))
}

func TestWith(t *testing.T) {
	log := New(slog.LevelInfo, "json")
	child := log.With(FieldService, "netsentry")
	require.NotNil(t, child)
	assert.NotSame(t, log, child)
}
