// Package logging provides structured logging configuration using log/slog.
//
// This package integrates with chi's RequestID middleware and the sync run ID
// carried in the context, so every entry logged while serving a request or
// running a sync can be correlated.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/nvdsync/internal/core"
)

// Setup installs the default slog logger writing to stdout.
// level is debug|info|warn|error (default info); format is text|json
// (default text).
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination. The CLI logs to stderr
// so stdout stays clean for command output.
func SetupWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// parseLevel accepts slog's level names plus "warning". Anything else is info.
func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// FromContext returns a logger enriched with request_id and sync_id when the
// context carries them.
//
// Usage:
//
//	func handleRequest(w http.ResponseWriter, r *http.Request) {
//	    logger := logging.FromContext(r.Context())
//	    logger.Info("streaming table", "table", name)
//	}
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	// Chi's RequestID middleware stores the ID in context
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if syncID := core.SyncIDFromContext(ctx); syncID != "" {
		logger = logger.With("sync_id", syncID)
	}

	return logger
}

// WithFields returns FromContext(ctx) with extra fields attached, for
// loggers that follow one operation through several steps:
//
//	logger := logging.WithFields(ctx, "backend", store.Backend())
//	logger.Info("upsert started", "rows", len(records))
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
