package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"devspace/internal/infra/config"
)

// FileOutput directs logs to devspace.log inside the configured logs directory.
const FileOutput = "file"

// New creates a configured *slog.Logger.
// The returned closer function should be deferred to flush/close file handles.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	return build(cfg.Output, parseLevel(cfg.Level), cfg.Format)
}

// FromConfig builds the application logger. Project debug mode forces the
// debug level, and the "file" output resolves against paths.logs_dir.
func FromConfig(cfg *config.Config) (*slog.Logger, func() error, error) {
	level := parseLevel(cfg.Logger.Level)
	if cfg.Project.Debug {
		level = slog.LevelDebug
	}
	output := cfg.Logger.Output
	if strings.EqualFold(output, FileOutput) {
		if err := os.MkdirAll(cfg.Paths.LogsDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create logs dir: %w", err)
		}
		output = filepath.Join(cfg.Paths.LogsDir, "devspace.log")
	}
	log, closer, err := build(output, level, cfg.Logger.Format)
	if err != nil {
		return nil, nil, err
	}
	return log.With("service", strings.ToLower(cfg.Project.Name)), closer, nil
}

func build(output string, level slog.Level, format string) (*slog.Logger, func() error, error) {
	writer, closer, err := openOutput(output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return slog.New(newHandler(writer, level, format)), closer, nil
}

func newHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Discard returns a logger that drops everything. Used by tests and quiet CLI paths.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// parseLevel converts a string level to slog.Level.
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

// openOutput returns an io.Writer for the specified output target.
func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr", "":
		return os.Stderr, noop, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}
