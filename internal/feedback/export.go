package feedback

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/store"
)

// Export is the bulk dump written by ExportMetrics.
type Export struct {
	ExportedAt               time.Time                `json:"exportedAt"`
	Interactions             []AIInteraction          `json:"interactions"`
	ClarificationMetrics     []ClarificationMetric    `json:"clarificationMetrics"`
	ImprovementOpportunities []ImprovementOpportunity `json:"improvementOpportunities"`
}

// ExportMetrics dumps interactions, clarification metrics and improvement
// opportunities as JSON or CSV.
func (m *Monitor) ExportMetrics(ctx context.Context, format Format) (string, error) {
	if format != FormatJSON && format != FormatCSV {
		return "", invalid("format", "must be json or csv, got %q", format)
	}

	interactions, err := store.ListJSON[AIInteraction](ctx, m.store, CollectionInteractions, "")
	if err != nil {
		return "", fmt.Errorf("list interactions: %w", err)
	}
	metrics, err := m.ClarificationMetrics(ctx)
	if err != nil {
		return "", err
	}
	opps, err := m.Opportunities(ctx)
	if err != nil {
		return "", err
	}

	exp := Export{
		ExportedAt:               m.now().UTC(),
		Interactions:             interactions,
		ClarificationMetrics:     metrics,
		ImprovementOpportunities: opps,
	}
	if format == FormatJSON {
		data, err := json.MarshalIndent(exp, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal export: %w", err)
		}
		return string(data), nil
	}
	return exportCSV(exp)
}

// exportCSV writes one table per record kind. The first column names the kind
// so the tables can be split after a single read.
func exportCSV(exp Export) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{{"record", "id", "user_id", "timestamp", "type", "model", "response_time_ms", "error_rate", "retry_count", "tokens_used", "confidence", "rating"}}
	for _, in := range exp.Interactions {
		rating := ""
		if in.Feedback != nil {
			rating = string(in.Feedback.Rating)
		}
		rows = append(rows, []string{
			"interaction", in.ID, in.UserID, in.Timestamp.Format(time.RFC3339), string(in.Type), in.Request.Model,
			strconv.FormatInt(in.Metrics.ResponseTimeMs, 10), strconv.Itoa(in.Metrics.ErrorRate), strconv.Itoa(in.Metrics.RetryCount),
			optInt(in.Response.TokensUsed), optFloat(in.Response.Confidence), rating,
		})
	}

	rows = append(rows, []string{"record", "question_id", "question", "times_asked", "thumbs_up_rate", "thumbs_down_rate", "accuracy_impact", "should_retire"})
	for _, cm := range exp.ClarificationMetrics {
		rows = append(rows, []string{
			"clarification", cm.QuestionID, cm.Question, strconv.Itoa(cm.TimesAsked),
			formatFloat(cm.ThumbsUpRate), formatFloat(cm.ThumbsDownRate), formatFloat(cm.AccuracyImpact),
			strconv.FormatBool(cm.ShouldRetire),
		})
	}

	rows = append(rows, []string{"record", "id", "timestamp", "interaction_id", "interaction_type", "model", "issue", "priority", "status"})
	for _, o := range exp.ImprovementOpportunities {
		rows = append(rows, []string{
			"opportunity", o.ID, o.Timestamp.Format(time.RFC3339), o.InteractionID, string(o.InteractionType),
			o.Model, string(o.Issue), string(o.Priority), string(o.Status),
		})
	}

	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write csv: %w", err)
	}
	return buf.String(), nil
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
