package logger

import (
	"io"
	"log/slog"
	"strings"
)

// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// SlogConfig configures the application logger.
type SlogConfig struct {
	Level    string // debug, info, warn, error (default info)
	Format   Format // text or json (default text)
	Color    bool   // colored level prefix, text format only
	ShowTime bool
	File     string // optional log file, rotated with Rotation
	Rotation Rotation
}

// ParseLevel maps a level name to slog.Level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Writer returns the configured log file writer, or fallback when no file is set.
func (c SlogConfig) Writer(fallback io.Writer) io.Writer {
	if strings.TrimSpace(c.File) == "" {
		return fallback
	}
	return c.Rotation.writer(c.File)
}

// NewSlogger builds a *slog.Logger writing to w.
func NewSlogger(cfg SlogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if !cfg.ShowTime {
		opts.ReplaceAttr = dropTime
	}
	var h slog.Handler
	switch {
	case cfg.Format == FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	case cfg.Color:
		h = NewColorTextHandler(w, opts, cfg.ShowTime)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}
