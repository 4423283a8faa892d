package analysis

import (
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/config"
)

// Primary causes reported by the energy crash sub-analysis.
const (
	CauseHighCarb   = "high carb intake"
	CauseMealTiming = "meal timing"
)

// EnergyAnalyzer detects afternoon crashes and low morning energy.
type EnergyAnalyzer struct {
	cfg config.AnalysisConfig
}

// NewEnergyAnalyzer creates an energy analyzer.
func NewEnergyAnalyzer(cfg config.AnalysisConfig) *EnergyAnalyzer {
	return &EnergyAnalyzer{cfg: cfg}
}

func (a *EnergyAnalyzer) Name() string { return "energy" }

func (a *EnergyAnalyzer) Analyze(c *coaching.CoachingContext) []coaching.Insight {
	var morning, afternoon []float64
	for _, s := range c.Energy {
		h := s.Timestamp.Hour()
		switch {
		case h >= a.cfg.MorningStartHour && h < a.cfg.AfternoonStartHour:
			morning = append(morning, float64(s.Level))
		case h >= a.cfg.AfternoonStartHour && h < a.cfg.AfternoonEndHour:
			afternoon = append(afternoon, float64(s.Level))
		}
	}

	avgMorning, okMorning := mean(morning)
	if !okMorning {
		return nil
	}

	var out []coaching.Insight
	if avgAfternoon, ok := mean(afternoon); ok && avgAfternoon < avgMorning-a.cfg.EnergyCrashDrop {
		out = append(out, a.crash(c, avgMorning, avgAfternoon))
	}
	if avgMorning < a.cfg.MorningEnergyFloor && c.Profile.GoalMentions("energy") {
		if in, ok := a.breakfast(c, avgMorning); ok {
			out = append(out, in)
		}
	}
	return out
}

// DropPercent is the truncated percentage fall from morning to afternoon.
func DropPercent(morning, afternoon float64) int {
	if morning <= 0 {
		return 0
	}
	return int((morning - afternoon) / morning * 100)
}

func (a *EnergyAnalyzer) crash(c *coaching.CoachingContext, morning, afternoon float64) coaching.Insight {
	drop := DropPercent(morning, afternoon)
	cause := a.lunchCause(c)

	in := newInsight(a.Name(), coaching.InsightPattern, coaching.PriorityHigh,
		"Afternoon energy crash",
		fmt.Sprintf("Your afternoon energy averages %.1f, %d%% below your morning average of %.1f.", afternoon, drop, morning))
	in.Data["morningAvg"] = round1(morning)
	in.Data["afternoonAvg"] = round1(afternoon)
	in.Data["dropPercent"] = drop
	in.Data["primaryCause"] = cause
	in.Data["recommendedLunchCarbs"] = a.cfg.RecommendedLunchCarbs

	if cause == CauseHighCarb {
		in.ActionItems = []string{
			fmt.Sprintf("Keep lunch carbs under %.0f g", a.cfg.RecommendedLunchCarbs),
			"Pair lunch carbs with protein and fiber",
			"Take a 10 minute walk after lunch",
		}
		in.Impact = "Steadier afternoon energy by avoiding post-lunch blood sugar swings"
	} else {
		in.ActionItems = []string{
			"Eat lunch at a consistent time each day",
			"Add a small protein snack mid-afternoon",
		}
		in.Impact = "Fewer afternoon dips from long gaps between meals"
	}
	return in
}

// lunchCause labels the crash by the carb load of the most recent lunches.
func (a *EnergyAnalyzer) lunchCause(c *coaching.CoachingContext) string {
	lunches := c.MealsOfType(coaching.MealLunch)
	sort.SliceStable(lunches, func(i, j int) bool { return lunches[i].Timestamp.Before(lunches[j].Timestamp) })
	if n := a.cfg.RecentLunches; n > 0 && len(lunches) > n {
		lunches = lunches[len(lunches)-n:]
	}
	if len(lunches) == 0 {
		return CauseMealTiming
	}

	high := 0
	for _, l := range lunches {
		if l.CarbsG > a.cfg.LunchCarbLimit {
			high++
		}
	}
	if high*2 > len(lunches) {
		return CauseHighCarb
	}
	return CauseMealTiming
}

func (a *EnergyAnalyzer) breakfast(c *coaching.CoachingContext, morning float64) (coaching.Insight, bool) {
	target := a.cfg.BreakfastProteinTarget
	breakfasts := c.MealsOfType(coaching.MealBreakfast)

	proteins := make([]float64, 0, len(breakfasts))
	for _, b := range breakfasts {
		proteins = append(proteins, b.ProteinG)
	}
	avgProtein, logged := mean(proteins)
	if logged && avgProtein >= target {
		return coaching.Insight{}, false
	}

	in := newInsight(a.Name(), coaching.InsightRecommendation, coaching.PriorityMedium,
		"Optimize your breakfast for morning energy", "")
	in.Data["morningAvg"] = round1(morning)
	in.Data["targetProteinG"] = target
	if logged {
		in.Description = fmt.Sprintf("Morning energy averages %.1f and breakfast protein averages %.0f g, below the %.0f g target.", morning, avgProtein, target)
		in.Data["avgBreakfastProteinG"] = round1(avgProtein)
		in.ActionItems = []string{
			fmt.Sprintf("Add %.0f g of protein to breakfast", target-avgProtein),
			"Try eggs, Greek yogurt or a protein smoothie",
		}
	} else {
		in.Description = fmt.Sprintf("Morning energy averages %.1f and no breakfast has been logged.", morning)
		in.ActionItems = []string{
			fmt.Sprintf("Eat a breakfast with at least %.0f g of protein", target),
			"Log breakfast so its effect on energy can be tracked",
		}
	}
	in.Impact = "Higher and steadier energy through the morning"
	return in, true
}
