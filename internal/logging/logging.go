package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel maps LOG_LEVEL style names to a slog level. ok is false for
// names it does not know.
func ParseLevel(l string) (level slog.Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "dev", "development", "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error", "production", "prod":
		return slog.LevelError, true
	}
	return 0, false
}

// New builds a logger writing to w in the given format.
func New(w io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "", FormatText:
		handler = slog.NewTextHandler(w, opts)
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
	return slog.New(handler), nil
}

// Init installs the default logger. LOG_LEVEL overrides level and
// LOG_FORMAT overrides format. Logs go to stderr so they never mix with
// command output.
func Init(level slog.Level, format string) (*slog.Logger, error) {
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		if parsed, ok := ParseLevel(l); ok {
			level = parsed
		}
	}
	if f, ok := os.LookupEnv("LOG_FORMAT"); ok && f != "" {
		format = strings.ToLower(f)
	}

	logger, err := New(os.Stderr, level, format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
