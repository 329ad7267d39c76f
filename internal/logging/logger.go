package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tailor/internal/config"
)

// LogFileName is the daemon log written under the configured log directory.
const LogFileName = "tailord.log"

// Options describes logger construction parameters. Console and File may both
// be set; every record goes to each of them.
type Options struct {
	Level       string
	Format      string
	Console     io.Writer
	File        string
	Development bool
}

// DaemonOptions returns the options tailord logs with: stdout plus
// {log_dir}/tailord.log. An empty level falls back to logging.level.
func DaemonOptions(cfg *config.Config, level string, development bool) Options {
	opts := Options{
		Level:       level,
		Console:     os.Stdout,
		Development: development,
	}
	if cfg == nil {
		return opts
	}
	if opts.Level == "" {
		opts.Level = cfg.Logging.Level
	}
	opts.Format = cfg.Logging.Format
	if cfg.Paths.LogDir != "" {
		opts.File = filepath.Join(cfg.Paths.LogDir, LogFileName)
	}
	return opts
}

// New constructs a logger. The returned closer releases the log file and is
// safe to call when no file was opened.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level := parseLevel(opts.Level)
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}
	if format != "console" && format != "json" {
		return nil, nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)
	if opts.Console != nil {
		writers = append(writers, opts.Console)
	}
	if path := strings.TrimSpace(opts.File); path != "" {
		file, err := openLogFile(path)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, file)
		closer = file
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	levelVar := new(slog.LevelVar)
	levelVar.Set(level)
	addSource := opts.Development || level <= slog.LevelDebug

	var handler slog.Handler
	if format == "json" {
		handler = newJSONHandler(out, levelVar, addSource)
	} else {
		handler = newConsoleHandler(out, levelVar, addSource)
	}
	return slog.New(handler), closer, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ErrInvalidLevel is returned by ParseLevel for unknown names.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLevel, name)
	}
}

func parseLevel(name string) slog.Level {
	level, _ := ParseLevel(name)
	return level
}

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
				}
			case slog.LevelKey:
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return attr
		},
	})
}
