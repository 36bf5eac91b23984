// Package logging configures the process-wide slog logger for both binaries.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	LevelError   = "ERROR"
	LevelWarning = "WARNING"
	LevelInfo    = "INFO"
	LevelDebug   = "DEBUG"

	FormatText = "text"
	FormatJSON = "json"
)

type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Debug reports whether the configured level is DEBUG.
func (c Config) Debug() bool {
	return strings.EqualFold(c.Level, LevelDebug)
}

// ParseLevel maps a config level to slog. Unknown values fall back to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelError:
		return slog.LevelError
	case LevelWarning, "WARN":
		return slog.LevelWarn
	case LevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w in the configured format.
func New(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, FormatJSON) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Init installs a stdout logger as the slog default.
func Init(cfg Config) {
	slog.SetDefault(New(os.Stdout, cfg))
}
