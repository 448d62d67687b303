package internal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
)

// DefaultLogLevel is used when no level is configured.
const DefaultLogLevel = "INFO"

func validLogLevels() map[string]slog.Level {
	return map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"ERROR": slog.LevelError,
	}
}

// ParseLogLevel maps DEBUG/INFO/WARN/ERROR (any case) to a slog level.
func ParseLogLevel(name string) (slog.Level, error) {
	if name == "" {
		name = DefaultLogLevel
	}
	level, ok := validLogLevels()[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// NewLogger builds a slog logger writing json (default) or text to w, tagged
// with component.
func NewLogger(cfg LogConfig, component string, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	logger := slog.New(handler)
	if component != "" {
		logger = logger.With("component", component)
	}
	return logger, nil
}

// watermillLogger routes watermill's logging through slog.
type watermillLogger struct {
	logger *slog.Logger
}

// NewWatermillLogger adapts logger to watermill.LoggerAdapter.
func NewWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &watermillLogger{logger: logger}
}

func fieldArgs(fields watermill.LogFields) []interface{} {
	args := make([]interface{}, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, value)
	}
	return args
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error(msg, append(fieldArgs(fields), "error", err)...)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.logger.Info(msg, fieldArgs(fields)...)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, fieldArgs(fields)...)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, fieldArgs(fields)...)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{logger: l.logger.With(fieldArgs(fields)...)}
}
