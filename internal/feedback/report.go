package feedback

import (
	"context"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/coachd/internal/store"
	"github.com/montanaflynn/stats"
)

// issueSuggestions maps an issue category to a canned improvement suggestion.
var issueSuggestions = map[Issue]string{
	IssueLowAccuracy:          "Review nutrition estimation prompts and add portion-size calibration examples",
	IssueNotHelpful:           "Make responses more actionable with specific next steps",
	IssueIncorrectInformation: "Add fact-checking guidance and ground answers in the food database",
	IssueConfusingResponse:    "Simplify wording and shorten responses",
	IssueOther:                "Manually review recent negative feedback for new patterns",
}

// Suggestion returns the canned suggestion for issue.
func Suggestion(issue Issue) string {
	if s, ok := issueSuggestions[issue]; ok {
		return s
	}
	return issueSuggestions[IssueOther]
}

// GeneratePerformanceReport aggregates interactions and improvement
// opportunities within the period's lookback, one report per known model tier.
func (m *Monitor) GeneratePerformanceReport(ctx context.Context, period Period) ([]ModelPerformanceReport, error) {
	lookback, err := period.Lookback()
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	since := now.Add(-lookback)

	interactions, err := store.ListJSON[AIInteraction](ctx, m.store, CollectionInteractions, "")
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	opps, err := m.Opportunities(ctx)
	if err != nil {
		return nil, err
	}

	byModel := map[string][]AIInteraction{}
	for _, in := range interactions {
		if in.Timestamp.Before(since) || in.Timestamp.After(now) {
			continue
		}
		byModel[in.Request.Model] = append(byModel[in.Request.Model], in)
	}
	issuesByModel := map[string]map[Issue]int{}
	for _, o := range opps {
		if o.Timestamp.Before(since) || o.Timestamp.After(now) {
			continue
		}
		if issuesByModel[o.Model] == nil {
			issuesByModel[o.Model] = map[Issue]int{}
		}
		issuesByModel[o.Model][o.Issue]++
	}

	reports := make([]ModelPerformanceReport, 0, len(m.tiers))
	for _, tier := range m.knownTiers() {
		r := m.buildReport(tier, period, byModel[tier], issuesByModel[tier])
		r.GeneratedAt = now
		reports = append(reports, r)
	}
	return reports, nil
}

func (m *Monitor) knownTiers() []string {
	names := make([]string, 0, len(m.tiers))
	for name := range m.tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Monitor) buildReport(tier string, period Period, interactions []AIInteraction, issues map[Issue]int) ModelPerformanceReport {
	r := ModelPerformanceReport{
		Model:                 tier,
		ModelName:             m.tiers[tier].Model,
		Period:                period,
		Interactions:          len(interactions),
		TopIssues:             []IssueCount{},
		SuggestedImprovements: []string{},
	}

	var successes int
	var responseTimes, tokens, helpfulness stats.Float64Data
	for _, in := range interactions {
		if in.Metrics.ErrorRate == 0 {
			successes++
		}
		responseTimes = append(responseTimes, float64(in.Metrics.ResponseTimeMs))
		if in.Response.TokensUsed != nil {
			tokens = append(tokens, float64(*in.Response.TokensUsed))
		}
		if in.Feedback != nil && in.Feedback.Helpfulness != nil {
			helpfulness = append(helpfulness, float64(*in.Feedback.Helpfulness))
		}
	}
	if len(interactions) > 0 {
		r.SuccessRate = float64(successes) / float64(len(interactions))
	}
	r.AvgResponseTimeMs = meanOrZero(responseTimes)
	r.AvgTokens = meanOrZero(tokens)
	r.UserSatisfaction = meanOrZero(helpfulness)
	r.EstimatedCost = r.AvgTokens * m.tiers[tier].CostPerToken

	r.TopIssues = topIssues(issues, m.cfg.TopIssues)
	for _, ic := range r.TopIssues {
		r.SuggestedImprovements = append(r.SuggestedImprovements, Suggestion(ic.Issue))
	}
	return r
}

func meanOrZero(xs stats.Float64Data) float64 {
	if len(xs) == 0 {
		return 0
	}
	v, err := stats.Mean(xs)
	if err != nil {
		return 0
	}
	return v
}

// topIssues returns the n most frequent issues, ties broken by name.
func topIssues(counts map[Issue]int, n int) []IssueCount {
	out := make([]IssueCount, 0, len(counts))
	for issue, c := range counts {
		out = append(out, IssueCount{Issue: issue, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Issue < out[j].Issue
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
