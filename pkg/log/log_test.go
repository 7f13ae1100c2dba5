package log_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/stablepay/layer2/pkg/log"
)

type captureSink struct {
	mu      sync.Mutex
	entries [][]byte
}

func (c *captureSink) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, append([]byte(nil), p...))
	return len(p), nil
}

func (c *captureSink) Sync() error { return nil }

func (c *captureSink) last(t *testing.T) map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.entries)
	entry := map[string]any{}
	require.NoError(t, json.Unmarshal(c.entries[len(c.entries)-1], &entry))
	return entry
}

func newJSONLogger(level log.Level) (log.Logger, *captureSink) {
	sink := &captureSink{}
	return log.NewZapLogger(log.Config{Format: "json", Level: level, Output: "stdout"}, sink), sink
}

func TestZapLogger(t *testing.T) {
	logger, sink := newJSONLogger(log.LevelDebug)
	logger = logger.WithName("executor")

	tests := []struct {
		level log.Level
		emit  func(string, ...any)
	}{
		{log.LevelDebug, logger.Debug},
		{log.LevelInfo, logger.Info},
		{log.LevelWarn, logger.Warn},
		{log.LevelError, logger.Error},
	}

	for _, test := range tests {
		t.Run(string(test.level), func(t *testing.T) {
			test.emit("submitted", "attempt", 1)
			entry := sink.last(t)
			assert.Equal(t, string(test.level), entry["level"])
			assert.Equal(t, "executor", entry["logger"])
			assert.Equal(t, "submitted", entry["msg"])
			assert.EqualValues(t, 1, entry["attempt"])
		})
	}

	t.Run("caller points at the call site", func(t *testing.T) {
		logger.Info("where")
		caller, _ := sink.last(t)["caller"].(string)
		assert.True(t, strings.HasPrefix(caller, "log/log_test.go:"), caller)
	})
}

func TestZapLoggerContext(t *testing.T) {
	logger, sink := newJSONLogger(log.LevelInfo)

	child := logger.WithName("layer2").WithName("loopring").WithKV("network", "goerli")
	assert.Equal(t, "layer2.loopring", child.Name())
	assert.Equal(t, []any{"network", "goerli"}, child.GetAllKV())
	assert.Empty(t, logger.GetAllKV(), "parent must not see child pairs")

	child.Info("hello")
	entry := sink.last(t)
	assert.Equal(t, "goerli", entry["network"])

	t.Run("level filter", func(t *testing.T) {
		before := len(sink.entries)
		logger.Debug("hidden")
		assert.Len(t, sink.entries, before)
	})

	t.Run("siblings do not share pairs", func(t *testing.T) {
		base := logger.WithKV("a", 1)
		x := base.WithKV("b", 2)
		y := base.WithKV("c", 3)
		assert.Equal(t, []any{"a", 1, "b", 2}, x.GetAllKV())
		assert.Equal(t, []any{"a", 1, "c", 3}, y.GetAllKV())
	})
}

type recordedEvent struct {
	name  string
	kv    []any
	isErr bool
}

type fakeRecorder struct {
	events []recordedEvent
}

func (f *fakeRecorder) TraceID() string { return "trace-1" }
func (f *fakeRecorder) SpanID() string  { return "span-1" }
func (f *fakeRecorder) RecordEvent(name string, kv ...any) {
	f.events = append(f.events, recordedEvent{name: name, kv: kv})
}
func (f *fakeRecorder) RecordError(name string, kv ...any) {
	f.events = append(f.events, recordedEvent{name: name, kv: kv, isErr: true})
}

func TestSpanLogger(t *testing.T) {
	base, sink := newJSONLogger(log.LevelDebug)
	rec := &fakeRecorder{}
	logger := log.NewSpanLogger(base.WithName("exec").WithKV("wallet", "0xabc"), rec)

	logger.Info("unlocking", "accountId", 7)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "unlocking", rec.events[0].name)
	assert.Equal(t, []any{"level", "info", "component", "exec", "wallet", "0xabc", "accountId", 7}, rec.events[0].kv)
	assert.False(t, rec.events[0].isErr)

	entry := sink.last(t)
	assert.Equal(t, "trace-1", entry["traceId"])
	assert.Equal(t, "span-1", entry["spanId"])

	logger.Error("retry failed")
	require.Len(t, rec.events, 2)
	assert.True(t, rec.events[1].isErr)

	named := logger.WithName("unlock").WithKV("k", "v")
	assert.Equal(t, "exec.unlock", named.Name())
	named.Warn("w")
	assert.Len(t, rec.events, 3)
}

func TestContextLogger(t *testing.T) {
	t.Run("missing logger falls back to noop", func(t *testing.T) {
		lg := log.FromContext(context.Background())
		assert.IsType(t, log.NoopLogger{}, lg)
	})

	t.Run("nil logger stores noop", func(t *testing.T) {
		ctx := log.SetContextLogger(context.Background(), nil)
		assert.IsType(t, log.NoopLogger{}, log.FromContext(ctx))
	})

	t.Run("plain context keeps logger", func(t *testing.T) {
		base, _ := newJSONLogger(log.LevelInfo)
		ctx := log.SetContextLogger(context.Background(), base)
		assert.Same(t, base, log.FromContext(ctx))
	})

	t.Run("span context wraps logger", func(t *testing.T) {
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID{1, 2, 3},
			SpanID:     trace.SpanID{4, 5, 6},
			TraceFlags: trace.FlagsSampled,
		})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)

		base, sink := newJSONLogger(log.LevelInfo)
		lg := log.FromContext(log.SetContextLogger(ctx, base))
		assert.IsType(t, log.SpanLogger{}, lg)

		lg.Info("traced")
		assert.Equal(t, sc.TraceID().String(), sink.last(t)["traceId"])
	})
}
