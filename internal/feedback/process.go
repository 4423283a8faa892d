package feedback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/config"
	"github.com/fyrsmithlabs/coachd/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// neutralScore stands in for a missing accuracy or helpfulness score when
// prioritizing an opportunity.
const neutralScore = 3

// ProcessFeedback attaches feedback to a recorded interaction, updates the
// clarification metrics it references and opens an improvement opportunity
// for negative feedback. Only validation and the attach write can fail the
// call; the attach write is retried once.
func (m *Monitor) ProcessFeedback(ctx context.Context, interactionID string, fb UserFeedback) error {
	if interactionID == "" {
		return invalid("interactionId", "required")
	}
	if err := fb.Validate(); err != nil {
		return err
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = m.now().UTC()
	}

	in, err := m.attachFeedback(ctx, interactionID, fb)
	if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, ErrFeedbackExists) {
		m.logger.Warn("attach feedback failed, retrying",
			zap.String("interaction_id", interactionID), zap.Error(err))
		in, err = m.attachFeedback(ctx, interactionID, fb)
	}
	if err != nil {
		return fmt.Errorf("attach feedback to %s: %w", interactionID, err)
	}
	FeedbackTotal.WithLabelValues(string(fb.Rating)).Inc()

	for _, q := range in.Request.ClarificationQuestions {
		if err := m.updateClarification(ctx, q, fb); err != nil {
			m.bookkeepingFailed("clarification", err, zap.String("question_id", q.ID))
		}
	}

	if fb.Negative() {
		m.openOpportunity(ctx, in, fb)
	}
	return nil
}

func (m *Monitor) attachFeedback(ctx context.Context, id string, fb UserFeedback) (AIInteraction, error) {
	var out AIInteraction
	err := store.UpdateJSON(ctx, m.store, CollectionInteractions, id, func(cur *AIInteraction, exists bool) error {
		if !exists {
			return store.ErrNotFound
		}
		if cur.Feedback != nil {
			return ErrFeedbackExists
		}
		f := fb
		cur.Feedback = &f
		out = *cur
		return nil
	})
	return out, err
}

// ShouldRetire flags a question whose thumbs-down rate is too high, or that
// has been asked often without earning enough thumbs-up.
func ShouldRetire(cfg config.FeedbackConfig, timesAsked int, thumbsUpRate, thumbsDownRate float64) bool {
	return thumbsDownRate > cfg.RetireThumbsDown ||
		(timesAsked > cfg.RetireMinAsked && thumbsUpRate < cfg.RetireThumbsUp)
}

// ApplyFeedback folds one piece of feedback into a clarification metric
// using incremental means, then recomputes the retirement flag.
func ApplyFeedback(cfg config.FeedbackConfig, cm *ClarificationMetric, fb UserFeedback) {
	cm.TimesAsked++
	if q := fb.ClarificationQuality; q != nil {
		cm.RatedCount++
		n := float64(cm.RatedCount)
		cm.ThumbsUpRate += (indicator(*q >= 4) - cm.ThumbsUpRate) / n
		cm.ThumbsDownRate += (indicator(*q <= 2) - cm.ThumbsDownRate) / n
	}
	if a := fb.Accuracy; a != nil {
		cm.AccuracySamples++
		cm.AccuracyImpact += (float64(*a) - cm.AccuracyImpact) / float64(cm.AccuracySamples)
	}
	cm.ShouldRetire = ShouldRetire(cfg, cm.TimesAsked, cm.ThumbsUpRate, cm.ThumbsDownRate)
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (m *Monitor) updateClarification(ctx context.Context, q ClarificationQuestion, fb UserFeedback) error {
	flagged := false
	err := store.UpdateJSON(ctx, m.store, CollectionClarifications, q.ID, func(cm *ClarificationMetric, exists bool) error {
		if !exists {
			cm.QuestionID = q.ID
		}
		if q.Text != "" {
			cm.Question = q.Text
		}
		was := cm.ShouldRetire
		ApplyFeedback(m.cfg, cm, fb)
		cm.LastUpdated = m.now().UTC()
		flagged = !was && cm.ShouldRetire
		return nil
	})
	if err != nil {
		return err
	}
	if flagged {
		RetirementFlagsTotal.Inc()
		m.logger.Info("clarification question flagged for retirement", zap.String("question_id", q.ID))
	}
	return nil
}

// CategorizeIssue picks the issue category of negative feedback in fixed
// precedence order.
func CategorizeIssue(fb UserFeedback) Issue {
	text := strings.ToLower(fb.Text)
	switch {
	case fb.Accuracy != nil && *fb.Accuracy <= 2:
		return IssueLowAccuracy
	case fb.Helpfulness != nil && *fb.Helpfulness <= 2:
		return IssueNotHelpful
	case strings.Contains(text, "wrong") || strings.Contains(text, "incorrect"):
		return IssueIncorrectInformation
	case strings.Contains(text, "confus") || strings.Contains(text, "unclear"):
		return IssueConfusingResponse
	default:
		return IssueOther
	}
}

// OpportunityPriority ranks negative feedback by accuracy plus helpfulness.
func OpportunityPriority(fb UserFeedback) coaching.Priority {
	sum := valueOr(fb.Accuracy, neutralScore) + valueOr(fb.Helpfulness, neutralScore)
	switch {
	case sum <= 3:
		return coaching.PriorityHigh
	case sum <= 5:
		return coaching.PriorityMedium
	default:
		return coaching.PriorityLow
	}
}

func valueOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func (m *Monitor) openOpportunity(ctx context.Context, in AIInteraction, fb UserFeedback) {
	opp := ImprovementOpportunity{
		ID:              uuid.New().String(),
		Timestamp:       m.now().UTC(),
		InteractionID:   in.ID,
		InteractionType: in.Type,
		UserID:          in.UserID,
		Model:           in.Request.Model,
		Issue:           CategorizeIssue(fb),
		Priority:        OpportunityPriority(fb),
		Status:          StatusPending,
		Details:         fb.Text,
	}
	if err := store.PutJSON(ctx, m.store, CollectionOpportunities, opp.ID, opp); err != nil {
		m.bookkeepingFailed("opportunity", err, zap.String("interaction_id", in.ID))
		return
	}
	OpportunitiesTotal.WithLabelValues(string(opp.Priority)).Inc()

	if opp.Priority == coaching.PriorityHigh {
		if err := m.alerter.Alert(ctx, opp); err != nil {
			m.bookkeepingFailed("alert", err, zap.String("opportunity_id", opp.ID))
		}
	}
}

// Opportunities returns every improvement opportunity, oldest first.
func (m *Monitor) Opportunities(ctx context.Context) ([]ImprovementOpportunity, error) {
	opps, err := store.ListJSON[ImprovementOpportunity](ctx, m.store, CollectionOpportunities, "")
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	sort.SliceStable(opps, func(i, j int) bool { return opps[i].Timestamp.Before(opps[j].Timestamp) })
	return opps, nil
}

// ClarificationPerformance partitions clarification metrics. A metric may
// appear in more than one list.
type ClarificationPerformance struct {
	Effective   []ClarificationMetric `json:"effective"`
	Ineffective []ClarificationMetric `json:"ineffective"`
	ToRetire    []ClarificationMetric `json:"toRetire"`
}

// ClarificationPerformance partitions all known clarification metrics by
// thumbs-up rate, thumbs-down rate and retirement flag.
func (m *Monitor) ClarificationPerformance(ctx context.Context) (ClarificationPerformance, error) {
	metrics, err := m.ClarificationMetrics(ctx)
	if err != nil {
		return ClarificationPerformance{}, err
	}
	out := ClarificationPerformance{
		Effective:   []ClarificationMetric{},
		Ineffective: []ClarificationMetric{},
		ToRetire:    []ClarificationMetric{},
	}
	for _, cm := range metrics {
		if cm.ThumbsUpRate > m.cfg.EffectiveThumbsUp {
			out.Effective = append(out.Effective, cm)
		}
		if cm.ThumbsDownRate > m.cfg.IneffectiveThumbsDn {
			out.Ineffective = append(out.Ineffective, cm)
		}
		if cm.ShouldRetire {
			out.ToRetire = append(out.ToRetire, cm)
		}
	}
	return out, nil
}

// ClarificationMetrics returns every metric ordered by question id.
func (m *Monitor) ClarificationMetrics(ctx context.Context) ([]ClarificationMetric, error) {
	metrics, err := store.ListJSON[ClarificationMetric](ctx, m.store, CollectionClarifications, "")
	if err != nil {
		return nil, fmt.Errorf("list clarification metrics: %w", err)
	}
	return metrics, nil
}
