package testutil

import (
	"sync"

	"github.com/hupe1980/agentstack/logging"
)

// LogEntry is one captured log call.
type LogEntry struct {
	Level logging.LogLevel
	Msg   string
	Args  []any
}

// Attr returns the value logged under key.
func (e LogEntry) Attr(key string) (any, bool) {
	for i := 0; i+1 < len(e.Args); i += 2 {
		if k, ok := e.Args[i].(string); ok && k == key {
			return e.Args[i+1], true
		}
	}

	return nil, false
}

// RecordingLogger captures log calls in memory.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ logging.Logger = (*RecordingLogger)(nil)

// NewRecordingLogger returns an empty RecordingLogger.
func NewRecordingLogger() *RecordingLogger { return &RecordingLogger{} }

func (l *RecordingLogger) record(level logging.LogLevel, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: append([]any(nil), args...)})
}

// Debug records a debug message.
func (l *RecordingLogger) Debug(msg string, args ...any) { l.record(logging.LogLevelDebug, msg, args) }

// Info records an informational message.
func (l *RecordingLogger) Info(msg string, args ...any) { l.record(logging.LogLevelInfo, msg, args) }

// Warn records a warning message.
func (l *RecordingLogger) Warn(msg string, args ...any) { l.record(logging.LogLevelWarn, msg, args) }

// Error records an error message.
func (l *RecordingLogger) Error(msg string, args ...any) { l.record(logging.LogLevelError, msg, args) }

// Entries returns a copy of the captured entries.
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]LogEntry(nil), l.entries...)
}

// Find returns the entries with the given level and message.
func (l *RecordingLogger) Find(level logging.LogLevel, msg string) []LogEntry {
	var out []LogEntry

	for _, e := range l.Entries() {
		if e.Level == level && e.Msg == msg {
			out = append(out, e)
		}
	}

	return out
}

// Count returns how many entries match level and msg.
func (l *RecordingLogger) Count(level logging.LogLevel, msg string) int {
	return len(l.Find(level, msg))
}
