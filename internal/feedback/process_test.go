package feedback

import (
	"context"
	"fmt"
	"testing"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/config"
	"github.com/fyrsmithlabs/coachd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestProcessFeedback_NegativeOpensOneOpportunity(t *testing.T) {
	alerts := &captureAlerter{}
	m := newTestMonitor(t, nil, WithAlerter(alerts))
	ctx := context.Background()
	require.NoError(t, m.TrackInteraction(ctx, interaction("i1")))

	fb := UserFeedback{Rating: RatingNegative, Accuracy: intPtr(1), Helpfulness: intPtr(2), Text: "portion was way off"}
	require.NoError(t, m.ProcessFeedback(ctx, "i1", fb))

	opps, err := m.Opportunities(ctx)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	opp := opps[0]
	assert.Equal(t, "i1", opp.InteractionID)
	assert.Equal(t, StatusPending, opp.Status)
	assert.Equal(t, IssueLowAccuracy, opp.Issue)
	assert.Equal(t, coaching.PriorityHigh, opp.Priority)
	assert.Equal(t, "fast", opp.Model)
	assert.Equal(t, InteractionCoaching, opp.InteractionType)

	require.Len(t, alerts.received(), 1)
	assert.Equal(t, opp.ID, alerts.received()[0].ID)

	got, err := m.Interaction(ctx, "i1")
	require.NoError(t, err)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, RatingNegative, got.Feedback.Rating)
	assert.Equal(t, testNow, got.Feedback.Timestamp)
}

func TestProcessFeedback_SecondSubmissionRejected(t *testing.T) {
	m := newTestMonitor(t, nil, WithAlerter(&captureAlerter{}))
	ctx := context.Background()
	require.NoError(t, m.TrackInteraction(ctx, interaction("i1")))

	fb := UserFeedback{Rating: RatingNegative, Helpfulness: intPtr(1)}
	require.NoError(t, m.ProcessFeedback(ctx, "i1", fb))

	err := m.ProcessFeedback(ctx, "i1", UserFeedback{Rating: RatingPositive})
	require.ErrorIs(t, err, ErrFeedbackExists)

	opps, err := m.Opportunities(ctx)
	require.NoError(t, err)
	assert.Len(t, opps, 1)

	got, err := m.Interaction(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, RatingNegative, got.Feedback.Rating)
}

func TestProcessFeedback_PositiveOpensNothing(t *testing.T) {
	alerts := &captureAlerter{}
	m := newTestMonitor(t, nil, WithAlerter(alerts))
	ctx := context.Background()
	require.NoError(t, m.TrackInteraction(ctx, interaction("i1")))

	require.NoError(t, m.ProcessFeedback(ctx, "i1", UserFeedback{Rating: RatingPositive, Accuracy: intPtr(5)}))

	opps, err := m.Opportunities(ctx)
	require.NoError(t, err)
	assert.Empty(t, opps)
	assert.Empty(t, alerts.received())
}

func TestProcessFeedback_LowAccuracyNeutralIsNegative(t *testing.T) {
	m := newTestMonitor(t, nil, WithAlerter(&captureAlerter{}))
	ctx := context.Background()
	require.NoError(t, m.TrackInteraction(ctx, interaction("i1")))

	require.NoError(t, m.ProcessFeedback(ctx, "i1", UserFeedback{Rating: RatingNeutral, Accuracy: intPtr(2)}))

	opps, err := m.Opportunities(ctx)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	// accuracy 2 plus neutral helpfulness 3.
	assert.Equal(t, coaching.PriorityMedium, opps[0].Priority)
}

func TestProcessFeedback_LowPriorityNotAlerted(t *testing.T) {
	alerts := &captureAlerter{}
	m := newTestMonitor(t, nil, WithAlerter(alerts))
	ctx := context.Background()
	require.NoError(t, m.TrackInteraction(ctx, interaction("i1")))

	require.NoError(t, m.ProcessFeedback(ctx, "i1", UserFeedback{Rating: RatingNegative, Text: "confusing"}))

	opps, err := m.Opportunities(ctx)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, IssueConfusingResponse, opps[0].Issue)
	assert.Empty(t, alerts.received())
}

func TestProcessFeedback_Errors(t *testing.T) {
	m := newTestMonitor(t, nil)
	ctx := context.Background()

	err := m.ProcessFeedback(ctx, "missing", UserFeedback{Rating: RatingPositive})
	require.ErrorIs(t, err, store.ErrNotFound)

	err = m.ProcessFeedback(ctx, "", UserFeedback{Rating: RatingPositive})
	assert.True(t, coaching.IsValidationError(err))

	require.NoError(t, m.TrackInteraction(ctx, interaction("i1")))
	err = m.ProcessFeedback(ctx, "i1", UserFeedback{Rating: "meh"})
	assert.True(t, coaching.IsValidationError(err))
	err = m.ProcessFeedback(ctx, "i1", UserFeedback{Rating: RatingPositive, Helpfulness: intPtr(6)})
	assert.True(t, coaching.IsValidationError(err))
}

func TestProcessFeedback_AlertFailureDoesNotFail(t *testing.T) {
	alerts := &captureAlerter{err: fmt.Errorf("broker down")}
	m := newTestMonitor(t, nil, WithAlerter(alerts))
	ctx := context.Background()
	require.NoError(t, m.TrackInteraction(ctx, interaction("i1")))

	require.NoError(t, m.ProcessFeedback(ctx, "i1", UserFeedback{Rating: RatingNegative, Accuracy: intPtr(1)}))
	assert.Len(t, alerts.received(), 1)
}

func TestProcessFeedback_ConcurrentClarificationUpdates(t *testing.T) {
	const n = 30

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			m := newTestMonitor(t, s)
			ctx := context.Background()

			for i := 0; i < n; i++ {
				in := interaction(fmt.Sprintf("i-%02d", i))
				in.Request.ClarificationQuestions = []ClarificationQuestion{{ID: "q-portion", Text: "How big was the portion?"}}
				require.NoError(t, m.TrackInteraction(ctx, in))
			}

			var g errgroup.Group
			for i := 0; i < n; i++ {
				g.Go(func() error {
					quality := 5
					if i%3 == 0 {
						quality = 1
					}
					return m.ProcessFeedback(ctx, fmt.Sprintf("i-%02d", i), UserFeedback{
						Rating:               RatingPositive,
						Accuracy:             intPtr(4),
						ClarificationQuality: intPtr(quality),
					})
				})
			}
			require.NoError(t, g.Wait())

			metrics, err := m.ClarificationMetrics(ctx)
			require.NoError(t, err)
			require.Len(t, metrics, 1)
			cm := metrics[0]
			assert.Equal(t, "q-portion", cm.QuestionID)
			assert.Equal(t, "How big was the portion?", cm.Question)
			assert.Equal(t, n, cm.TimesAsked)
			assert.InDelta(t, 2.0/3.0, cm.ThumbsUpRate, 1e-9)
			assert.InDelta(t, 1.0/3.0, cm.ThumbsDownRate, 1e-9)
			assert.InDelta(t, 4.0, cm.AccuracyImpact, 1e-9)
			assert.False(t, cm.ShouldRetire)
		})
	}
}

func TestShouldRetire(t *testing.T) {
	cfg := config.DefaultFeedback()

	tests := []struct {
		name       string
		timesAsked int
		up, down   float64
		want       bool
	}{
		{"healthy", 50, 0.8, 0.1, false},
		{"thumbs down at threshold", 10, 0.2, 0.5, false},
		{"thumbs down above threshold", 10, 0.2, 0.51, true},
		{"low thumbs up but rarely asked", 100, 0.1, 0.2, false},
		{"low thumbs up and often asked", 101, 0.29, 0.2, true},
		{"often asked with enough thumbs up", 500, 0.3, 0.2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldRetire(cfg, tt.timesAsked, tt.up, tt.down)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, ShouldRetire(cfg, tt.timesAsked, tt.up, tt.down))
		})
	}
}

func TestApplyFeedback_RatesStayInUnitInterval(t *testing.T) {
	cfg := config.DefaultFeedback()
	cm := &ClarificationMetric{QuestionID: "q"}

	for i, q := range []int{5, 1, 3, 4, 2, 5, 5} {
		ApplyFeedback(cfg, cm, UserFeedback{Rating: RatingPositive, ClarificationQuality: intPtr(q), Accuracy: intPtr(i%5 + 1)})
		assert.GreaterOrEqual(t, cm.ThumbsUpRate, 0.0)
		assert.LessOrEqual(t, cm.ThumbsUpRate, 1.0)
		assert.GreaterOrEqual(t, cm.ThumbsDownRate, 0.0)
		assert.LessOrEqual(t, cm.ThumbsDownRate, 1.0)
	}
	assert.Equal(t, 7, cm.TimesAsked)
	assert.Equal(t, 7, cm.RatedCount)
	assert.InDelta(t, 4.0/7.0, cm.ThumbsUpRate, 1e-9)
	assert.InDelta(t, 2.0/7.0, cm.ThumbsDownRate, 1e-9)

	// Feedback without a quality score counts as asked but leaves the rates alone.
	ApplyFeedback(cfg, cm, UserFeedback{Rating: RatingNeutral})
	assert.Equal(t, 8, cm.TimesAsked)
	assert.InDelta(t, 4.0/7.0, cm.ThumbsUpRate, 1e-9)
}

func TestApplyFeedback_FlagsRetirement(t *testing.T) {
	cfg := config.DefaultFeedback()
	cm := &ClarificationMetric{QuestionID: "q"}

	ApplyFeedback(cfg, cm, UserFeedback{Rating: RatingNegative, ClarificationQuality: intPtr(1)})
	assert.True(t, cm.ShouldRetire)

	for i := 0; i < 3; i++ {
		ApplyFeedback(cfg, cm, UserFeedback{Rating: RatingPositive, ClarificationQuality: intPtr(5)})
	}
	// Down rate is now 1/4.
	assert.False(t, cm.ShouldRetire)
}

func TestCategorizeIssue(t *testing.T) {
	tests := []struct {
		name string
		fb   UserFeedback
		want Issue
	}{
		{"low accuracy wins", UserFeedback{Accuracy: intPtr(2), Helpfulness: intPtr(1), Text: "wrong"}, IssueLowAccuracy},
		{"low helpfulness", UserFeedback{Accuracy: intPtr(4), Helpfulness: intPtr(2), Text: "wrong"}, IssueNotHelpful},
		{"wrong in text", UserFeedback{Text: "That is Wrong"}, IssueIncorrectInformation},
		{"incorrect in text", UserFeedback{Text: "incorrect calories"}, IssueIncorrectInformation},
		{"confusing", UserFeedback{Text: "very confusing"}, IssueConfusingResponse},
		{"unclear", UserFeedback{Text: "answer was unclear"}, IssueConfusingResponse},
		{"other", UserFeedback{Accuracy: intPtr(3), Text: "meh"}, IssueOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeIssue(tt.fb))
		})
	}
}

func TestOpportunityPriority(t *testing.T) {
	tests := []struct {
		name string
		fb   UserFeedback
		want coaching.Priority
	}{
		{"both minimal", UserFeedback{Accuracy: intPtr(1), Helpfulness: intPtr(1)}, coaching.PriorityHigh},
		{"sum three", UserFeedback{Accuracy: intPtr(1), Helpfulness: intPtr(2)}, coaching.PriorityHigh},
		{"sum four", UserFeedback{Accuracy: intPtr(2), Helpfulness: intPtr(2)}, coaching.PriorityMedium},
		{"sum five", UserFeedback{Accuracy: intPtr(2), Helpfulness: intPtr(3)}, coaching.PriorityMedium},
		{"sum six", UserFeedback{Accuracy: intPtr(3), Helpfulness: intPtr(3)}, coaching.PriorityLow},
		{"missing scores count as neutral", UserFeedback{}, coaching.PriorityLow},
		{"missing helpfulness", UserFeedback{Accuracy: intPtr(1)}, coaching.PriorityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OpportunityPriority(tt.fb))
		})
	}
}

func TestClarificationPerformance(t *testing.T) {
	s := store.NewMemory()
	m := newTestMonitor(t, s)
	ctx := context.Background()

	seed := []ClarificationMetric{
		{QuestionID: "q-good", ThumbsUpRate: 0.9, ThumbsDownRate: 0.05},
		{QuestionID: "q-bad", ThumbsUpRate: 0.1, ThumbsDownRate: 0.6, ShouldRetire: true},
		{QuestionID: "q-mixed", ThumbsUpRate: 0.75, ThumbsDownRate: 0.35},
		{QuestionID: "q-meh", ThumbsUpRate: 0.5, ThumbsDownRate: 0.2},
	}
	for _, cm := range seed {
		require.NoError(t, store.PutJSON(ctx, s, CollectionClarifications, cm.QuestionID, cm))
	}

	perf, err := m.ClarificationPerformance(ctx)
	require.NoError(t, err)

	questionIDs := func(ms []ClarificationMetric) []string {
		out := []string{}
		for _, cm := range ms {
			out = append(out, cm.QuestionID)
		}
		return out
	}
	assert.Equal(t, []string{"q-good", "q-mixed"}, questionIDs(perf.Effective))
	assert.Equal(t, []string{"q-bad", "q-mixed"}, questionIDs(perf.Ineffective))
	assert.Equal(t, []string{"q-bad"}, questionIDs(perf.ToRetire))
}

func TestClarificationPerformance_Empty(t *testing.T) {
	m := newTestMonitor(t, nil)

	perf, err := m.ClarificationPerformance(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, perf.Effective)
	assert.NotNil(t, perf.Ineffective)
	assert.NotNil(t, perf.ToRetire)
}
