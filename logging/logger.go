package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a case-insensitive level name to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger defines the minimal logging interface for agentstack.
// Args are slog style key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// Output formats understood by NewLogger.
const (
	FormatJSON = "json"
	FormatText = "text"
	FormatTint = "tint"
)

// LoggerConfig configures construction of a StackLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json, text or tint
	Output      io.Writer
	AddSource   bool
	NoColor     bool
	Component   string
	SessionID   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a JSON, info level configuration writing to stdout.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: FormatJSON, Output: os.Stdout, CustomAttrs: map[string]any{}}
}

// StackLogger is the structured logger used across agentstack. Derived
// loggers share the level of their parent, so SetLevel affects all of them.
type StackLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// NewLogger builds a StackLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *StackLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Level))

	l := &StackLogger{logger: slog.New(newHandler(out, cfg, level)), level: level}

	attrs := make([]any, 0, 2*len(cfg.CustomAttrs)+4)
	if cfg.Component != "" {
		attrs = append(attrs, "component", cfg.Component)
	}

	if cfg.SessionID != "" {
		attrs = append(attrs, "session_id", cfg.SessionID)
	}

	for k, v := range cfg.CustomAttrs {
		attrs = append(attrs, k, v)
	}

	if len(attrs) > 0 {
		l.logger = l.logger.With(attrs...)
	}

	return l
}

func newHandler(out io.Writer, cfg *LoggerConfig, level slog.Leveler) slog.Handler {
	switch cfg.Format {
	case FormatText:
		return slog.NewTextHandler(out, &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource})
	case FormatTint:
		return tint.NewHandler(out, &tint.Options{
			Level:      level,
			AddSource:  cfg.AddSource,
			TimeFormat: time.TimeOnly,
			NoColor:    cfg.NoColor,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Value.Kind() == slog.KindAny {
					if _, ok := a.Value.Any().(error); ok {
						return tint.Attr(9, a)
					}
				}
				return a
			},
		})
	default:
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource})
	}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *StackLogger) with(args ...any) *StackLogger {
	return &StackLogger{logger: l.logger.With(args...), level: l.level}
}

// With returns a logger that adds key/value attrs to every entry.
func (l *StackLogger) With(args ...any) *StackLogger { return l.with(args...) }

// WithComponent tags entries with the logical component (runner, storage, inspect, ...).
func (l *StackLogger) WithComponent(c string) *StackLogger { return l.with("component", c) }

// WithSession tags entries with session and agent identifiers.
func (l *StackLogger) WithSession(sessionID, agentID string) *StackLogger {
	return l.with("session_id", sessionID, "agent_id", agentID)
}

// SetLevel changes the minimum level of this logger and everything derived from it.
func (l *StackLogger) SetLevel(level LogLevel) { l.level.Set(slogLevel(level)) }

// Slog exposes the underlying *slog.Logger.
func (l *StackLogger) Slog() *slog.Logger { return l.logger }

func (l *StackLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

func (l *StackLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

func (l *StackLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

func (l *StackLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// NoOpLogger discards everything.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}
