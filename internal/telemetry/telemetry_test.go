package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Enabled = true
	require.NoError(t, cfg.Validate())

	cfg.Endpoint = "collector.example.com:4317"
	require.Error(t, cfg.Validate(), "insecure remote export must be rejected")

	cfg.Insecure = false
	require.NoError(t, cfg.Validate())

	cfg.SampleRate = 2
	require.Error(t, cfg.Validate())
}

func TestIsLocalEndpoint(t *testing.T) {
	for endpoint, want := range map[string]bool{
		"localhost:4317":        true,
		"127.0.0.1:4317":        true,
		"[::1]:4317":            true,
		"http://localhost:4318": true,
		"otel.internal:4317":    false,
		"10.0.0.5:4317":         false,
	} {
		assert.Equal(t, want, isLocalEndpoint(endpoint), endpoint)
	}
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), nil)
	require.NoError(t, err)
	assert.False(t, tel.Degraded())
	assert.Nil(t, tel.LoggerProvider())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewResource(t *testing.T) {
	res := newResource(NewDefaultConfig())
	var found bool
	for _, attr := range res.Attributes() {
		if string(attr.Key) == "service.name" {
			assert.Equal(t, "coachd", attr.Value.AsString())
			found = true
		}
	}
	assert.True(t, found)
}

func TestTestTelemetry_RecordsSpansAndMetrics(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	_, span := tt.Tracer("coachd/test").Start(ctx, "insights.generate")
	span.End()
	tt.AssertSpanExists(t, "insights.generate")

	counter, err := tt.Meter("coachd/test").Int64Counter("coachd.test.count")
	require.NoError(t, err)
	counter.Add(ctx, 2)

	m, ok := FindMetric(tt.Collect(t), "coachd.test.count")
	require.True(t, ok)
	assert.Equal(t, "coachd.test.count", m.Name)
}
