// Package logger builds the slog loggers used by the platform binaries and
// carries per-request metadata through context into every record.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/taskhive/platform/internal/config"
)

// New creates the process logger: JSON to stdout, a "service" attribute on
// every record, and automatic request_id enrichment for context-aware log
// calls (see requestHandler).
func New(cfg config.Logging) *slog.Logger {
	json := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	return slog.New(&requestHandler{inner: json}).With("service", cfg.Service)
}

// parseLevel maps a config string onto a slog.Level. Unknown strings fall
// back to info rather than failing startup.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
