// Package debug provides context-based debug mode with structured logging.
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type contextKey string

const debugKey contextKey = "debug_enabled"

// Log formats accepted by Setup.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// WithDebug returns a context with debug mode enabled/disabled.
func WithDebug(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, debugKey, enabled)
}

// IsEnabled returns true if debug mode is enabled in the context.
func IsEnabled(ctx context.Context) bool {
	if v, ok := ctx.Value(debugKey).(bool); ok {
		return v
	}
	return false
}

// Setup configures the default slog logger. Debug mode logs at Debug level,
// otherwise only warnings and errors are written.
func Setup(w io.Writer, debugEnabled bool, format string) error {
	var level slog.Level
	if debugEnabled {
		level = slog.LevelDebug
	} else {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		handler = slog.NewTextHandler(w, opts)
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be %s or %s", format, FormatText, FormatJSON)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
