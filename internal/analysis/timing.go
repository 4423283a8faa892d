package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/config"
)

// TimingAnalyzer checks breakfast timing and overnight fasting against the
// goal protocol.
type TimingAnalyzer struct {
	cfg config.AnalysisConfig
}

// NewTimingAnalyzer creates a meal-timing analyzer.
func NewTimingAnalyzer(cfg config.AnalysisConfig) *TimingAnalyzer {
	return &TimingAnalyzer{cfg: cfg}
}

func (a *TimingAnalyzer) Name() string { return "timing" }

func (a *TimingAnalyzer) Analyze(c *coaching.CoachingContext) []coaching.Insight {
	p := ProtocolFor(c.Profile.PrimaryGoal)

	var out []coaching.Insight
	if in, ok := a.breakfastShift(c, p); ok {
		out = append(out, in)
	}
	if in, ok := a.fasting(c, p); ok {
		out = append(out, in)
	}
	return out
}

// averageBreakfastHour returns the mean fractional hour of logged breakfasts.
func averageBreakfastHour(c *coaching.CoachingContext) (float64, bool) {
	var hours []float64
	for _, b := range c.MealsOfType(coaching.MealBreakfast) {
		hours = append(hours, hourOf(b.Timestamp))
	}
	return mean(hours)
}

func (a *TimingAnalyzer) breakfastShift(c *coaching.CoachingContext, p Protocol) (coaching.Insight, bool) {
	avg, ok := averageBreakfastHour(c)
	if !ok {
		return coaching.Insight{}, false
	}
	diff := avg - p.OptimalBreakfastHour
	if math.Abs(diff) <= a.cfg.BreakfastShiftHours {
		return coaching.Insight{}, false
	}

	direction := "later"
	if diff < 0 {
		direction = "earlier"
	}
	in := newInsight(a.Name(), coaching.InsightRecommendation, coaching.PriorityMedium,
		"Adjust your breakfast time",
		fmt.Sprintf("You usually eat breakfast around %s, %.1f hours %s than the %s window for your goal.",
			clockTime(avg), math.Abs(diff), direction, clockTime(p.OptimalBreakfastHour)))
	in.Data["avgBreakfastHour"] = round1(avg)
	in.Data["optimalBreakfastHour"] = p.OptimalBreakfastHour
	in.Data["deviationHours"] = round1(diff)
	in.ActionItems = []string{
		fmt.Sprintf("Aim to eat breakfast near %s", clockTime(p.OptimalBreakfastHour)),
		"Shift breakfast by 30 minutes every few days",
	}
	in.Impact = "Better alignment of meals with your daily rhythm"
	return in, true
}

// OvernightGaps returns the gaps in hours between consecutive meals that
// exceed minHours.
func OvernightGaps(meals []coaching.MealRecord, minHours float64) []float64 {
	sorted := make([]coaching.MealRecord, len(meals))
	copy(sorted, meals)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var gaps []float64
	for i := 1; i < len(sorted); i++ {
		h := sorted[i].Timestamp.Sub(sorted[i-1].Timestamp).Hours()
		if h > minHours {
			gaps = append(gaps, h)
		}
	}
	return gaps
}

func (a *TimingAnalyzer) fasting(c *coaching.CoachingContext, p Protocol) (coaching.Insight, bool) {
	avg, ok := mean(OvernightGaps(c.Meals, a.cfg.OvernightGapHours))
	if !ok {
		return coaching.Insight{}, false
	}
	shortfall := p.FastingHours - avg
	if shortfall <= a.cfg.FastingShortfallHours {
		return coaching.Insight{}, false
	}

	in := newInsight(a.Name(), coaching.InsightOpportunity, coaching.PriorityLow,
		"Extend your overnight fast",
		fmt.Sprintf("Your overnight fast averages %.1f hours; your goal protocol suggests %.0f.", avg, p.FastingHours))
	in.Data["avgFastingHours"] = round1(avg)
	in.Data["targetFastingHours"] = p.FastingHours
	in.Data["shortfallHours"] = round1(shortfall)
	in.ActionItems = []string{
		"Close the kitchen after dinner",
		fmt.Sprintf("Build up to a %.0f hour overnight fast", p.FastingHours),
	}
	in.Impact = "Improved metabolic flexibility"
	return in, true
}

// clockTime renders a fractional hour such as 7.5 as "7:30".
func clockTime(h float64) string {
	hh := int(h)
	mm := int(math.Round((h - float64(hh)) * 60))
	if mm == 60 {
		hh, mm = hh+1, 0
	}
	return fmt.Sprintf("%d:%02d", hh, mm)
}
