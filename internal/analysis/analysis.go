// Package analysis holds the five pattern analyzers that turn a coaching
// context into candidate insights.
//
// Analyzers are stateless and never mutate the context, so the engine runs
// them in parallel. Sparse data produces no insights rather than an error.
// Every threshold comes from config.AnalysisConfig.
package analysis

import (
	"time"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/config"
	"github.com/montanaflynn/stats"
)

// Analyzer scans a context and emits zero or more candidate insights.
type Analyzer interface {
	Name() string
	Analyze(c *coaching.CoachingContext) []coaching.Insight
}

// All returns the analyzers in emission order.
func All(cfg config.AnalysisConfig) []Analyzer {
	return []Analyzer{
		NewEnergyAnalyzer(cfg),
		NewSleepAnalyzer(cfg),
		NewMacroAnalyzer(cfg),
		NewTimingAnalyzer(cfg),
		NewGoalAnalyzer(cfg),
	}
}

// mean returns the arithmetic mean and false for an empty input.
func mean(xs []float64) (float64, bool) {
	m, err := stats.Mean(stats.Float64Data(xs))
	if err != nil {
		return 0, false
	}
	return m, true
}

// stddev returns the population standard deviation and false for fewer than
// two values.
func stddev(xs []float64) (float64, bool) {
	if len(xs) < 2 {
		return 0, false
	}
	sd, err := stats.StandardDeviation(stats.Float64Data(xs))
	if err != nil {
		return 0, false
	}
	return sd, true
}

// round1 rounds to one decimal place.
func round1(v float64) float64 {
	r, _ := stats.Round(v, 1)
	return r
}

// hourOf returns the fractional hour of day of t.
func hourOf(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}

// dayKey buckets a timestamp by calendar day in its own location.
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// windowWeeks is the length of the context window in weeks, at least one.
func windowWeeks(c *coaching.CoachingContext) float64 {
	if c.WindowStart.IsZero() || !c.Now.After(c.WindowStart) {
		return 1
	}
	w := c.Now.Sub(c.WindowStart).Hours() / (24 * 7)
	if w < 1 {
		return 1
	}
	return w
}

// calorieTotals returns the calories across meals and the number of
// distinct days they were logged on.
func calorieTotals(meals []coaching.MealRecord) (total float64, days int) {
	seen := map[string]bool{}
	for _, m := range meals {
		total += m.Calories
		seen[dayKey(m.Timestamp)] = true
	}
	return total, len(seen)
}

// dailyCalories is the mean calories per logged day.
func dailyCalories(meals []coaching.MealRecord) float64 {
	total, days := calorieTotals(meals)
	if days == 0 {
		return 0
	}
	return total / float64(days)
}

// proteinPercent is the share of calories from protein across meals, in percent.
func proteinPercent(meals []coaching.MealRecord) (float64, bool) {
	var protein, calories float64
	for _, m := range meals {
		protein += m.ProteinG
		calories += m.Calories
	}
	if calories <= 0 {
		return 0, false
	}
	return protein * 4 / calories * 100, true
}

func newInsight(source string, t coaching.InsightType, p coaching.Priority, title, desc string) coaching.Insight {
	return coaching.Insight{
		Type:        t,
		Priority:    p,
		Title:       title,
		Description: desc,
		Source:      source,
		Data:        map[string]any{},
	}
}
