package logging

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	logger, err := New(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger.Underlying())
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestNew_OTELOnlyWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}
	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings("debug", "console")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	cfg, err = FromSettings("trace", "")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)

	_, err = FromSettings("loud", "json")
	require.Error(t, err)

	_, err = FromSettings("info", "xml")
	require.Error(t, err)
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))
	ctx = WithUserID(ctx, "u-42")
	ctx = WithRequestID(ctx, "req-1")

	tl.Info(ctx, "insights generated", zap.Int("count", 3))

	tl.AssertLogged(t, zapcore.InfoLevel, "insights generated")
	tl.AssertField(t, "insights generated", "user.id", "u-42")
	tl.AssertField(t, "insights generated", "request.id", "req-1")
	tl.AssertField(t, "insights generated", "trace_id", traceID.String())
	tl.AssertField(t, "insights generated", "count", int64(3))
}

func TestLogger_Levels(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Trace(ctx, "t")
	tl.Debug(ctx, "d")
	tl.Warn(ctx, "w")
	tl.Error(ctx, "e")

	tl.AssertLogged(t, TraceLevel, "t")
	tl.AssertLogged(t, zapcore.DebugLevel, "d")
	tl.AssertLogged(t, zapcore.WarnLevel, "w")
	tl.AssertLogged(t, zapcore.ErrorLevel, "e")
	tl.AssertNotLogged(t, zapcore.InfoLevel, "e")
}

func TestWrap(t *testing.T) {
	tl := NewTestLogger()
	wrapped := Wrap(tl.Zap().Named("feedback"))

	ctx := WithUserID(context.Background(), "u-7")
	wrapped.Warn(ctx, "slow response", zap.Int64("ms", 12000))

	entries := tl.FilterMessage("slow response").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "feedback", entries[0].LoggerName)
	assert.Equal(t, "u-7", entries[0].ContextMap()["user.id"])

	// A nil logger yields a usable nop logger.
	Wrap(nil).Info(ctx, "dropped")
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	var buf bytes.Buffer
	core := zapcore.NewCore(enc, zapcore.AddSync(&buf), zapcore.InfoLevel)
	zap.New(core).Info("calling gateway",
		zap.String("api_key", "sk-abcdefghijkl"),
		zap.String("header", "Bearer abc.def"),
		zap.String("model", "gpt-4o"),
		Secret("redis_password", config.Secret("hunter2")),
	)

	out := buf.String()
	assert.NotContains(t, out, "sk-abcdefghijkl")
	assert.NotContains(t, out, "abc.def")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "gpt-4o")
	assert.Contains(t, out, "[REDACTED:7]")
}

func TestRedactingEncoder_InvalidPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{"("}})
	require.Error(t, err)
}

func TestSampledCore_ErrorsNeverSampled(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	sampled := newSampledCore(core, SamplingConfig{Enabled: true, Tick: time.Minute, Initial: 5, Thereafter: 0})
	zl := zap.New(sampled)

	for i := 0; i < 50; i++ {
		zl.Error("boom")
		zl.Info("chatty")
	}

	assert.Equal(t, 50, observed.FilterMessage("boom").Len())
	assert.Equal(t, 5, observed.FilterMessage("chatty").Len())
}

func TestSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Equal(t, core, newSampledCore(core, SamplingConfig{}))
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = LevelFromString("nope")
	require.Error(t, err)
}
