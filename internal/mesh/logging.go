package mesh

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// slogFactory hands pion's scoped loggers a slog backend.
type slogFactory struct {
	log *slog.Logger
}

// NewLoggerFactory adapts logger for pion's SettingEngine.
func NewLoggerFactory(logger *slog.Logger) logging.LoggerFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogFactory{log: logger}
}

func (f *slogFactory) NewLogger(scope string) logging.LeveledLogger {
	return &slogLogger{log: f.log.With("pion", scope)}
}

// levelTrace sits below slog.LevelDebug; pion's trace output is very noisy.
const levelTrace = slog.LevelDebug - 4

type slogLogger struct {
	log *slog.Logger
}

func (l *slogLogger) emit(level slog.Level, msg string) {
	l.log.Log(context.Background(), level, msg)
}

func (l *slogLogger) Trace(msg string) { l.emit(levelTrace, msg) }
func (l *slogLogger) Tracef(format string, args ...any) {
	l.emit(levelTrace, fmt.Sprintf(format, args...))
}
func (l *slogLogger) Debug(msg string) { l.emit(slog.LevelDebug, msg) }
func (l *slogLogger) Debugf(format string, args ...any) {
	l.emit(slog.LevelDebug, fmt.Sprintf(format, args...))
}
func (l *slogLogger) Info(msg string) { l.emit(slog.LevelInfo, msg) }
func (l *slogLogger) Infof(format string, args ...any) {
	l.emit(slog.LevelInfo, fmt.Sprintf(format, args...))
}
func (l *slogLogger) Warn(msg string) { l.emit(slog.LevelWarn, msg) }
func (l *slogLogger) Warnf(format string, args ...any) {
	l.emit(slog.LevelWarn, fmt.Sprintf(format, args...))
}
func (l *slogLogger) Error(msg string) { l.emit(slog.LevelError, msg) }
func (l *slogLogger) Errorf(format string, args ...any) {
	l.emit(slog.LevelError, fmt.Sprintf(format, args...))
}
