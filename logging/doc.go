// Package logging provides a minimal logging interface and adapters for agentstack.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// the runtime uses for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - StackLogger, a configurable slog logger with json, text and tint output
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: logging.FormatTint})
//	env := core.NewEnvironment(reg, func(o *core.EnvironmentOptions) { o.Logger = logger })
//
// Messages are dotted event names ("tool.call.success") followed by key/value
// attributes.
package logging
