// Package log provides the logging infrastructure shared by all ara components.
//
// Loggers are injected, never global: each component receives a *slog.Logger
// via its constructor and may add context with logger.With(). Tests use
// NewNop() or NewWithWriter() with a buffer to inspect output.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a type alias for *slog.Logger so components can declare the
// dependency without importing log/slog themselves.
type Logger = *slog.Logger

// Config defines logger options.
type Config struct {
	// Level is the minimum log level. Default: slog.LevelInfo.
	Level slog.Level

	// JSON switches output to JSON format. Default: text.
	JSON bool

	// AddSource attaches source file positions to entries.
	AddSource bool
}

// New creates a logger writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. Useful for tests that need
// to capture output.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop returns a logger that discards everything. Test use only.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
