package feedback

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/config"
	"github.com/fyrsmithlabs/coachd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// captureAlerter records every alert it receives.
type captureAlerter struct {
	mu   sync.Mutex
	opps []ImprovementOpportunity
	err  error
}

func (c *captureAlerter) Alert(_ context.Context, opp ImprovementOpportunity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opps = append(c.opps, opp)
	return c.err
}

func (c *captureAlerter) received() []ImprovementOpportunity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ImprovementOpportunity(nil), c.opps...)
}

func testTiers() map[string]config.TierConfig {
	return map[string]config.TierConfig{
		"fast":    {Model: "m-fast", CostPerToken: 0.001},
		"quality": {Model: "m-quality", CostPerToken: 0.01},
	}
}

func newTestMonitor(t *testing.T, s store.Store, opts ...Option) *Monitor {
	t.Helper()
	if s == nil {
		s = store.NewMemory()
	}
	opts = append([]Option{WithClock(func() time.Time { return testNow }), WithTiers(testTiers())}, opts...)
	m, err := NewMonitor(s, config.DefaultFeedback(), nil, opts...)
	require.NoError(t, err)
	return m
}

func interaction(id string) AIInteraction {
	return AIInteraction{
		ID:     id,
		UserID: "u1",
		Type:   InteractionCoaching,
		Request: InteractionRequest{
			Input: "what should I eat",
			Model: "fast",
		},
		Metrics: InteractionMetrics{ResponseTimeMs: 100},
	}
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func backends(t *testing.T) map[string]store.Store {
	t.Helper()
	sqliteStore, err := store.OpenSQLite(filepath.Join(t.TempDir(), "feedback.db"), 5, time.Millisecond, nil)
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })
	return map[string]store.Store{
		"memory": store.NewMemory(),
		"sqlite": sqliteStore,
	}
}

func TestNewMonitor_Validation(t *testing.T) {
	_, err := NewMonitor(nil, config.DefaultFeedback(), nil)
	require.Error(t, err)

	bad := config.DefaultFeedback()
	bad.RetireThumbsDown = 2
	_, err = NewMonitor(store.NewMemory(), bad, nil)
	require.Error(t, err)
}

func TestTrackInteraction_RejectsMalformed(t *testing.T) {
	m := newTestMonitor(t, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*AIInteraction)
	}{
		{"missing user", func(i *AIInteraction) { i.UserID = "" }},
		{"unknown type", func(i *AIInteraction) { i.Type = "chat" }},
		{"error rate out of range", func(i *AIInteraction) { i.Metrics.ErrorRate = 2 }},
		{"negative response time", func(i *AIInteraction) { i.Metrics.ResponseTimeMs = -1 }},
		{"confidence above one", func(i *AIInteraction) { i.Response.Confidence = floatPtr(1.2) }},
		{"question without id", func(i *AIInteraction) {
			i.Request.ClarificationQuestions = []ClarificationQuestion{{Text: "portion?"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := interaction("")
			tt.mutate(&in)
			err := m.TrackInteraction(ctx, in)
			require.Error(t, err)
			assert.True(t, coaching.IsValidationError(err))
		})
	}

	rt, err := m.RealtimeMetrics(ctx)
	require.NoError(t, err)
	assert.Zero(t, rt.TotalInteractions)
}

func TestTrackInteraction_AssignsIDAndTimestamp(t *testing.T) {
	s := store.NewMemory()
	m := newTestMonitor(t, s)
	ctx := context.Background()

	require.NoError(t, m.TrackInteraction(ctx, interaction("")))

	all, err := store.ListJSON[AIInteraction](ctx, s, CollectionInteractions, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotEmpty(t, all[0].ID)
	assert.Equal(t, testNow, all[0].Timestamp)
	assert.Nil(t, all[0].Feedback)
}

func TestTrackInteraction_DuplicateIDCountedOnce(t *testing.T) {
	m := newTestMonitor(t, nil)
	ctx := context.Background()

	require.NoError(t, m.TrackInteraction(ctx, interaction("dup")))
	second := interaction("dup")
	second.Metrics.ResponseTimeMs = 9000
	require.NoError(t, m.TrackInteraction(ctx, second))

	rt, err := m.RealtimeMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rt.TotalInteractions)
	assert.Equal(t, 100.0, rt.AvgResponseTimeMs)

	got, err := m.Interaction(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Metrics.ResponseTimeMs)
}

// flakyRealtimeStore fails the first failures updates of the realtime
// aggregate.
type flakyRealtimeStore struct {
	*store.Memory
	mu       sync.Mutex
	failures int
}

func (f *flakyRealtimeStore) Update(ctx context.Context, collection, key string, fn store.UpdateFunc) error {
	if collection == CollectionRealtime {
		f.mu.Lock()
		fail := f.failures > 0
		if fail {
			f.failures--
		}
		f.mu.Unlock()
		if fail {
			return errors.New("connection reset")
		}
	}
	return f.Memory.Update(ctx, collection, key, fn)
}

func TestTrackInteraction_RetryCountsAfterFailedFold(t *testing.T) {
	s := &flakyRealtimeStore{Memory: store.NewMemory(), failures: 1}
	m := newTestMonitor(t, s)
	ctx := context.Background()

	require.NoError(t, m.TrackInteraction(ctx, interaction("r1")))
	rt, err := m.RealtimeMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rt.TotalInteractions)

	got, err := m.Interaction(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, got.Aggregated)

	require.NoError(t, m.TrackInteraction(ctx, interaction("r1")))
	rt, err = m.RealtimeMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rt.TotalInteractions)

	got, err = m.Interaction(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, got.Aggregated)

	// Once folded, further retries are duplicates.
	require.NoError(t, m.TrackInteraction(ctx, interaction("r1")))
	rt, err = m.RealtimeMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rt.TotalInteractions)
}

func TestTrackInteraction_ClientCannotPreMarkAggregated(t *testing.T) {
	m := newTestMonitor(t, nil)
	ctx := context.Background()

	in := interaction("pre")
	in.Aggregated = true
	require.NoError(t, m.TrackInteraction(ctx, in))

	rt, err := m.RealtimeMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rt.TotalInteractions)
}

func TestTrackInteraction_ConcurrentWriters(t *testing.T) {
	const n = 50

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			m := newTestMonitor(t, s)
			ctx := context.Background()

			var g errgroup.Group
			for i := 0; i < n; i++ {
				g.Go(func() error {
					in := interaction(fmt.Sprintf("i-%03d", i))
					in.Metrics.ResponseTimeMs = int64(i * 10)
					if i%5 == 0 {
						in.Metrics.ErrorRate = 1
					}
					if i%2 == 0 {
						in.Type = InteractionFoodScan
					}
					return m.TrackInteraction(ctx, in)
				})
			}
			require.NoError(t, g.Wait())

			rt, err := m.RealtimeMetrics(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(n), rt.TotalInteractions)
			assert.Equal(t, int64(n/2), rt.ByType[InteractionFoodScan])
			assert.Equal(t, int64(n/2), rt.ByType[InteractionCoaching])
			assert.Equal(t, int64(n/5), rt.ErrorCount)
			// Mean of 0, 10, ..., 490.
			assert.InDelta(t, 245.0, rt.AvgResponseTimeMs, 1e-6)
			assert.Equal(t, int64(n), rt.HourlyDistribution[10])
		})
	}
}

func TestRealtimeMetrics_EmptyStore(t *testing.T) {
	m := newTestMonitor(t, nil)

	rt, err := m.RealtimeMetrics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rt.TotalInteractions)
	assert.NotNil(t, rt.ByType)
}

func TestDetectAnomalies_Boundaries(t *testing.T) {
	m := newTestMonitor(t, nil)

	tests := []struct {
		name   string
		mutate func(*AIInteraction)
		want   []AnomalyType
	}{
		{"at slow threshold", func(i *AIInteraction) { i.Metrics.ResponseTimeMs = 10000 }, nil},
		{"above slow threshold", func(i *AIInteraction) { i.Metrics.ResponseTimeMs = 10001 }, []AnomalyType{AnomalySlowResponse}},
		{"at token threshold", func(i *AIInteraction) { i.Response.TokensUsed = intPtr(5000) }, nil},
		{"above token threshold", func(i *AIInteraction) { i.Response.TokensUsed = intPtr(5001) }, []AnomalyType{AnomalyHighTokenUsage}},
		{"at retry threshold", func(i *AIInteraction) { i.Metrics.RetryCount = 2 }, nil},
		{"above retry threshold", func(i *AIInteraction) { i.Metrics.RetryCount = 3 }, []AnomalyType{AnomalyMultipleRetries}},
		{"at confidence threshold", func(i *AIInteraction) { i.Response.Confidence = floatPtr(0.5) }, nil},
		{"below confidence threshold", func(i *AIInteraction) { i.Response.Confidence = floatPtr(0.49) }, []AnomalyType{AnomalyLowConfidence}},
		{"all at once", func(i *AIInteraction) {
			i.Metrics.ResponseTimeMs = 20000
			i.Response.TokensUsed = intPtr(9000)
			i.Metrics.RetryCount = 4
			i.Response.Confidence = floatPtr(0.1)
		}, []AnomalyType{AnomalySlowResponse, AnomalyHighTokenUsage, AnomalyMultipleRetries, AnomalyLowConfidence}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := interaction("x")
			tt.mutate(&in)
			assert.Equal(t, tt.want, m.DetectAnomalies(in))
		})
	}
}

func TestTrackInteraction_RecordsAnomalies(t *testing.T) {
	m := newTestMonitor(t, nil)
	ctx := context.Background()

	slow := interaction("slow")
	slow.Metrics.ResponseTimeMs = 15000
	require.NoError(t, m.TrackInteraction(ctx, slow))
	require.NoError(t, m.TrackInteraction(ctx, interaction("fine")))

	anomalies, err := m.Anomalies(ctx)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "slow", anomalies[0].InteractionID)
	assert.Equal(t, []AnomalyType{AnomalySlowResponse}, anomalies[0].Types)
}
