package sketchy

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a structured logger for the index packages. If handler is
// nil, a text handler writing to stderr at info level is used.
func NewLogger(handler slog.Handler) *slog.Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return slog.New(handler)
}

// NoopLogger returns a logger that discards all output. Index options
// default to it.
func NoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}
