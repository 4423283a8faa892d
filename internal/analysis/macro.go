package analysis

import (
	"fmt"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/config"
)

// MacroAnalyzer compares protein intake to the goal protocol and flags
// carb-heavy breakfasts for energy-focused users.
type MacroAnalyzer struct {
	cfg config.AnalysisConfig
}

// NewMacroAnalyzer creates a macro-balance analyzer.
func NewMacroAnalyzer(cfg config.AnalysisConfig) *MacroAnalyzer {
	return &MacroAnalyzer{cfg: cfg}
}

func (a *MacroAnalyzer) Name() string { return "macro" }

func (a *MacroAnalyzer) Analyze(c *coaching.CoachingContext) []coaching.Insight {
	var out []coaching.Insight
	if in, ok := a.protein(c); ok {
		out = append(out, in)
	}
	if in, ok := a.breakfastCarbs(c); ok {
		out = append(out, in)
	}
	return out
}

// ProteinGapGrams converts a percentage-point protein shortfall into grams of
// protein at the given calorie intake.
func ProteinGapGrams(targetPct, actualPct, calories float64) float64 {
	return (targetPct - actualPct) * calories / 100 / 4
}

func (a *MacroAnalyzer) protein(c *coaching.CoachingContext) (coaching.Insight, bool) {
	actual, ok := proteinPercent(c.Meals)
	if !ok {
		return coaching.Insight{}, false
	}
	p := ProtocolFor(c.Profile.PrimaryGoal)
	if actual >= p.ProteinPct-a.cfg.ProteinGapPoints {
		return coaching.Insight{}, false
	}

	total, days := calorieTotals(c.Meals)
	gap := ProteinGapGrams(p.ProteinPct, actual, total)
	perDay := gap / float64(days)

	in := newInsight(a.Name(), coaching.InsightWarning, coaching.PriorityHigh,
		"You're not getting enough protein",
		fmt.Sprintf("Protein provides %.0f%% of your calories against a %.0f%% target for your goal, about %.0f g short over %d logged day(s).",
			actual, p.ProteinPct, gap, days))
	in.Data["actualProteinPct"] = round1(actual)
	in.Data["targetProteinPct"] = p.ProteinPct
	in.Data["totalCalories"] = round1(total)
	in.Data["loggedDays"] = days
	in.Data["gapGrams"] = round1(gap)
	in.Data["dailyGapGrams"] = round1(perDay)
	in.Data["protocol"] = p.Goal
	in.ActionItems = []string{
		fmt.Sprintf("Add about %.0f g of protein per day", perDay),
		"Include a palm-sized protein source at every meal",
		"Swap one snack for Greek yogurt, cottage cheese or a shake",
	}
	in.Impact = "Better satiety, muscle retention and steadier energy"
	return in, true
}

func (a *MacroAnalyzer) breakfastCarbs(c *coaching.CoachingContext) (coaching.Insight, bool) {
	if !c.Profile.GoalMentions("energy") {
		return coaching.Insight{}, false
	}
	var carbs, calories float64
	for _, b := range c.MealsOfType(coaching.MealBreakfast) {
		carbs += b.CarbsG
		calories += b.Calories
	}
	if calories <= 0 {
		return coaching.Insight{}, false
	}
	share := carbs * 4 / calories
	if share <= a.cfg.BreakfastCarbShare {
		return coaching.Insight{}, false
	}

	in := newInsight(a.Name(), coaching.InsightRecommendation, coaching.PriorityMedium,
		"Rebalance your breakfast",
		fmt.Sprintf("%.0f%% of your breakfast calories come from carbs, which can cause a mid-morning slump.", share*100))
	in.Data["breakfastCarbPct"] = round1(share * 100)
	in.Data["limitPct"] = a.cfg.BreakfastCarbShare * 100
	in.ActionItems = []string{
		"Replace part of the carbs at breakfast with protein",
		"Add healthy fats like nuts or avocado",
	}
	in.Impact = "More stable energy until lunch"
	return in, true
}
