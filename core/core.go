package core

import "github.com/hupe1980/agentstack/logging"

// logScope is the logging helper embedded by Environment, StepContext,
// ToolContext and Storage. It never holds a nil logger and may carry attrs
// that are prepended to every record.
type logScope struct {
	logger logging.Logger
	attrs  []any
}

func newLogScope(l logging.Logger) *logScope {
	if l == nil {
		l = logging.NoOpLogger{}
	}

	return &logScope{logger: l}
}

// with returns a child scope carrying extra key/value attrs.
func (l *logScope) with(args ...any) *logScope {
	attrs := make([]any, 0, len(l.attrs)+len(args))
	attrs = append(attrs, l.attrs...)
	attrs = append(attrs, args...)

	return &logScope{logger: l.logger, attrs: attrs}
}

func (l *logScope) args(args []any) []any {
	if len(l.attrs) == 0 {
		return args
	}

	return append(append([]any(nil), l.attrs...), args...)
}

// Logger returns the underlying logger without the scope's attrs.
func (l *logScope) Logger() logging.Logger { return l.logger }

func (l *logScope) LogDebug(msg string, args ...any) { l.logger.Debug(msg, l.args(args)...) }

func (l *logScope) LogInfo(msg string, args ...any) { l.logger.Info(msg, l.args(args)...) }

func (l *logScope) LogWarn(msg string, args ...any) { l.logger.Warn(msg, l.args(args)...) }

func (l *logScope) LogError(msg string, args ...any) { l.logger.Error(msg, l.args(args)...) }
