package log

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	_ Logger            = SpanLogger{}
	_ SpanEventRecorder = (*OtelRecorder)(nil)
)

// SpanLogger writes every entry to the wrapped logger, tagged with trace and
// span ids, and mirrors it onto a span. Error and Fatal mark the span failed.
type SpanLogger struct {
	lg  Logger
	rec SpanEventRecorder
}

func NewSpanLogger(lg Logger, rec SpanEventRecorder) Logger {
	return SpanLogger{lg: lg.AddCallerSkip(1), rec: rec}
}

func (s SpanLogger) Debug(msg string, keysAndValues ...any) {
	s.rec.RecordEvent(msg, s.eventKV(LevelDebug, keysAndValues)...)
	s.lg.Debug(msg, s.traceKV(keysAndValues)...)
}

func (s SpanLogger) Info(msg string, keysAndValues ...any) {
	s.rec.RecordEvent(msg, s.eventKV(LevelInfo, keysAndValues)...)
	s.lg.Info(msg, s.traceKV(keysAndValues)...)
}

func (s SpanLogger) Warn(msg string, keysAndValues ...any) {
	s.rec.RecordEvent(msg, s.eventKV(LevelWarn, keysAndValues)...)
	s.lg.Warn(msg, s.traceKV(keysAndValues)...)
}

func (s SpanLogger) Error(msg string, keysAndValues ...any) {
	s.rec.RecordError(msg, s.eventKV(LevelError, keysAndValues)...)
	s.lg.Error(msg, s.traceKV(keysAndValues)...)
}

func (s SpanLogger) Fatal(msg string, keysAndValues ...any) {
	s.rec.RecordError(msg, s.eventKV(LevelFatal, keysAndValues)...)
	s.lg.Fatal(msg, s.traceKV(keysAndValues)...)
}

func (s SpanLogger) WithKV(key string, value any) Logger {
	return SpanLogger{lg: s.lg.WithKV(key, value), rec: s.rec}
}

func (s SpanLogger) GetAllKV() []any { return s.lg.GetAllKV() }

func (s SpanLogger) WithName(name string) Logger {
	return SpanLogger{lg: s.lg.WithName(name), rec: s.rec}
}

func (s SpanLogger) Name() string { return s.lg.Name() }

func (s SpanLogger) AddCallerSkip(skip int) Logger {
	return SpanLogger{lg: s.lg.AddCallerSkip(skip), rec: s.rec}
}

func (s SpanLogger) traceKV(keysAndValues []any) []any {
	return append([]any{"traceId", s.rec.TraceID(), "spanId", s.rec.SpanID()}, keysAndValues...)
}

func (s SpanLogger) eventKV(level Level, keysAndValues []any) []any {
	kv := []any{"level", string(level), "component", s.lg.Name()}
	kv = append(kv, s.lg.GetAllKV()...)
	return append(kv, keysAndValues...)
}

// OtelRecorder records log entries as OpenTelemetry span events.
type OtelRecorder struct {
	span trace.Span
}

func NewOtelRecorder(span trace.Span) *OtelRecorder {
	return &OtelRecorder{span: span}
}

func (r *OtelRecorder) TraceID() string { return r.span.SpanContext().TraceID().String() }
func (r *OtelRecorder) SpanID() string  { return r.span.SpanContext().SpanID().String() }

func (r *OtelRecorder) RecordEvent(name string, keysAndValues ...any) {
	r.span.AddEvent(name, trace.WithAttributes(toAttributes(keysAndValues)...))
}

func (r *OtelRecorder) RecordError(name string, keysAndValues ...any) {
	r.span.AddEvent(name, trace.WithAttributes(toAttributes(keysAndValues)...))
	r.span.SetStatus(codes.Error, name)
}

func toAttributes(keysAndValues []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			attrs = append(attrs, attribute.String("invalidKeysAndValues", fmt.Sprint(keysAndValues[i:])))
			break
		}
		if i+1 >= len(keysAndValues) {
			attrs = append(attrs, attribute.String(key, "MISSING"))
			break
		}
		attrs = append(attrs, toAttribute(key, keysAndValues[i+1]))
	}
	return attrs
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case uint32:
		return attribute.Int64(key, int64(v))
	case uint64:
		return attribute.String(key, fmt.Sprint(v))
	case float64:
		return attribute.Float64(key, v)
	case error:
		return attribute.String(key, v.Error())
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
