// Package logging provides the process logger. Output goes to stderr so the
// chat command can stream model text on stdout uninterrupted.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/m-mizutani/clog"
)

type contextKey struct{}

var (
	loggerKey  = contextKey{}
	fallbackMu sync.RWMutex
	fallback   = New("info", os.Stderr)
)

// parseLevel converts a level string to slog.Level, defaulting to info
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a clog-backed console logger. Source locations are attached
// only at debug level; goerr key-value context is expanded into attributes.
// Accepts levels "debug", "info", "warn", "error" (case-insensitive).
func New(level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	lv := parseLevel(level)
	handler := clog.New(
		clog.WithWriter(w),
		clog.WithLevel(lv),
		clog.WithTimeFmt("15:04:05"),
		clog.WithSource(lv == slog.LevelDebug),
		clog.WithAttrHook(clog.GoerrHook),
	)

	return slog.New(handler)
}

// SetDefault replaces the logger From falls back to when a context carries
// none
func SetDefault(logger *slog.Logger) {
	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	fallback = logger
}

// With returns a new context with the logger attached
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// From retrieves the logger from the context, or the fallback logger when
// the context carries none
func From(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}

	fallbackMu.RLock()
	defer fallbackMu.RUnlock()
	return fallback
}
