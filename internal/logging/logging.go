// Package logging provides structured logging with file rotation.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration.
type Config struct {
	Level      string // Log level: debug, info, warn, error
	Format     string // Output format: text or json
	FilePath   string // Path to log file (empty = stderr only)
	MaxSizeMB  int    // Max size in MB before rotation
	MaxBackups int    // Max number of old log files to retain
	MaxAgeDays int    // Max age in days to retain old log files
	Compress   bool   // Whether to compress rotated files
}

// DefaultConfig returns sensible defaults for logging.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

// Setup initializes the global slog logger with the given configuration.
// Stdout is never written to: the MCP stdio transport owns it.
// Returns a cleanup function that should be called on shutdown.
func Setup(cfg Config) (func() error, error) {
	writer, cleanup, err := openWriter(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(NewHandler(writer, cfg)))
	return cleanup, nil
}

// NewHandler builds the handler Setup installs, writing to w.
func NewHandler(w io.Writer, cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func openWriter(cfg Config) (io.Writer, func() error, error) {
	if cfg.FilePath == "" {
		return os.Stderr, func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, nil, err
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
	return lj, lj.Close, nil
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
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
