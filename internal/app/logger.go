package app

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// NewLogger returns a configured slog.Logger based on configuration.
// LOG_FORMAT=json and LOG_FORMAT=text force a handler; anything else picks
// text for terminals and JSON otherwise.
func NewLogger(cfg *Config) *slog.Logger {
	format := ""
	if cfg != nil {
		format = cfg.LogFormat
	}
	fd := os.Stdout.Fd()
	return newLogger(os.Stdout, format, isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
}

func newLogger(w io.Writer, format string, terminal bool) *slog.Logger {
	switch {
	case format == "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true}))
	case format == "text", terminal:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{AddSource: true}))
	default:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true}))
	}
}
