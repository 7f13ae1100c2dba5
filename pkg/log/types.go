// Package log is the structured logging facade shared by the layer-2 packages
// and the CLI.
//
// Loggers take a message followed by alternating keys and values:
//
//	logger.Info("operation submitted", "type", op.Type, "attempt", 2)
//
// NewZapLogger is the production implementation; NewNoopLogger discards
// everything. Loggers travel through context.Context with SetContextLogger
// and FromContext; when the context carries an OpenTelemetry span, log
// entries are mirrored onto the span as events.
package log

// Logger is a leveled, structured logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Fatal logs and terminates the process for the zap implementation.
	Fatal(msg string, keysAndValues ...any)

	// WithKV returns a child logger that always includes key=value.
	WithKV(key string, value any) Logger
	// GetAllKV returns the persistent pairs added with WithKV.
	GetAllKV() []any
	// WithName returns a child logger whose name is suffixed with name.
	WithName(name string) Logger
	Name() string
	// AddCallerSkip is for wrappers that should not appear as the log caller.
	AddCallerSkip(skip int) Logger
}

// Level is a log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// SpanEventRecorder receives log entries as trace events.
type SpanEventRecorder interface {
	TraceID() string
	SpanID() string
	RecordEvent(name string, keysAndValues ...any)
	RecordError(name string, keysAndValues ...any)
}
