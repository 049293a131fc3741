package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New constructs a logger tagged with service. LOG_LEVEL picks the level and
// LOG_FORMAT=json switches from the text handler to JSON.
func New(service string) *slog.Logger {
	return newWith(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")).With("service", service)
}

// OrDiscard returns l, or a logger that drops everything when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newWith(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
