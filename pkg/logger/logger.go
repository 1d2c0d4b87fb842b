// Package logger provides the process-wide structured logger.
package logger

import (
	"log/slog"
	"os"
)

// New returns a text slog.Logger writing to stderr. Debug enables
// debug-level output and source locations.
func New(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	return slog.New(handler)
}
