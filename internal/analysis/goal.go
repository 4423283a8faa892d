package analysis

import (
	"fmt"
	"math"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/config"
)

// Adherence check names.
const (
	CheckCalories = "calories"
	CheckMacros   = "macros"
	CheckTiming   = "timing"
	CheckSleep    = "sleep"
)

// Adherence is the composite protocol adherence of a context window.
type Adherence struct {
	Score  int             `json:"score"`
	Checks map[string]bool `json:"checks"`
}

// CalculateAdherenceScore awards AdherenceCheckPoints for each of four checks
// that holds: calories near target, protein near protocol, breakfast near the
// protocol window and consistent sleep duration.
func CalculateAdherenceScore(c *coaching.CoachingContext, cfg config.AnalysisConfig) Adherence {
	p := ProtocolFor(c.Profile.PrimaryGoal)
	checks := map[string]bool{
		CheckCalories: false,
		CheckMacros:   false,
		CheckTiming:   false,
		CheckSleep:    false,
	}

	if target := c.Profile.CalorieTarget; target > 0 && len(c.Meals) > 0 {
		checks[CheckCalories] = math.Abs(dailyCalories(c.Meals)-target) <= target*cfg.CalorieTolerance
	}
	if pct, ok := proteinPercent(c.Meals); ok {
		checks[CheckMacros] = math.Abs(pct-p.ProteinPct) <= cfg.MacroTolerancePoints
	}
	if hour, ok := averageBreakfastHour(c); ok {
		checks[CheckTiming] = math.Abs(hour-p.OptimalBreakfastHour) <= cfg.TimingToleranceHours
	}
	if len(c.Sleep) >= cfg.SleepMinRecords {
		durations := make([]float64, 0, len(c.Sleep))
		for _, s := range c.Sleep {
			durations = append(durations, s.DurationHours)
		}
		if sd, ok := stddev(durations); ok {
			checks[CheckSleep] = sd <= cfg.SleepMaxStdDevHours
		}
	}

	score := 0
	for _, passed := range checks {
		if passed {
			score += cfg.AdherenceCheckPoints
		}
	}
	return Adherence{Score: min(max(score, 0), 100), Checks: checks}
}

// GoalAnalyzer scores protocol adherence and runs one goal-specific check.
type GoalAnalyzer struct {
	cfg config.AnalysisConfig
}

// NewGoalAnalyzer creates a goal-progress analyzer.
func NewGoalAnalyzer(cfg config.AnalysisConfig) *GoalAnalyzer {
	return &GoalAnalyzer{cfg: cfg}
}

func (a *GoalAnalyzer) Name() string { return "goal" }

func (a *GoalAnalyzer) Analyze(c *coaching.CoachingContext) []coaching.Insight {
	if len(c.Meals) < a.cfg.MinMealsForAdherence {
		return nil
	}

	var out []coaching.Insight
	if in, ok := a.adherence(c); ok {
		out = append(out, in)
	}

	var (
		in coaching.Insight
		ok bool
	)
	switch coaching.NormalizeGoal(c.Profile.PrimaryGoal) {
	case coaching.GoalWeightLoss:
		in, ok = a.deficitConsistency(c)
	case coaching.GoalMuscleGain:
		in, ok = a.muscleGain(c)
	case coaching.GoalEnergy:
		in, ok = a.energyStability(c)
	}
	if ok {
		out = append(out, in)
	}
	return out
}

func (a *GoalAnalyzer) adherence(c *coaching.CoachingContext) (coaching.Insight, bool) {
	adh := CalculateAdherenceScore(c, a.cfg)

	var in coaching.Insight
	switch {
	case adh.Score < a.cfg.AdherenceWarnBelow:
		in = newInsight(a.Name(), coaching.InsightWarning, coaching.PriorityMedium,
			"Your plan adherence is slipping",
			fmt.Sprintf("Your adherence score is %d/100.", adh.Score))
		for _, name := range []string{CheckCalories, CheckMacros, CheckTiming, CheckSleep} {
			if !adh.Checks[name] {
				in.ActionItems = append(in.ActionItems, adherenceTips[name])
			}
		}
		in.Impact = "Closer adherence speeds progress toward your goal"
	case adh.Score > a.cfg.AdherenceAchieveAbove:
		in = newInsight(a.Name(), coaching.InsightAchievement, coaching.PriorityLow,
			"Great consistency",
			fmt.Sprintf("Your adherence score is %d/100. Keep it up.", adh.Score))
		in.ActionItems = []string{"Keep your current routine going"}
		in.Impact = "Consistent habits compound into lasting results"
	default:
		return coaching.Insight{}, false
	}
	in.Data["score"] = adh.Score
	in.Data["checks"] = adh.Checks
	return in, true
}

var adherenceTips = map[string]string{
	CheckCalories: "Stay within 10% of your daily calorie target",
	CheckMacros:   "Bring protein closer to your protocol target",
	CheckTiming:   "Eat breakfast closer to your protocol window",
	CheckSleep:    "Keep a consistent sleep schedule",
}

func (a *GoalAnalyzer) deficitConsistency(c *coaching.CoachingContext) (coaching.Insight, bool) {
	target := c.Profile.CalorieTarget
	if target <= 0 {
		return coaching.Insight{}, false
	}
	perDay := map[string]float64{}
	for _, m := range c.Meals {
		perDay[dayKey(m.Timestamp)] += m.Calories
	}
	if len(perDay) == 0 {
		return coaching.Insight{}, false
	}
	deficit := 0
	for _, cal := range perDay {
		if cal < target {
			deficit++
		}
	}
	perWeek := float64(deficit) / float64(len(perDay)) * 7
	if perWeek >= float64(a.cfg.DeficitDaysPerWeek) {
		return coaching.Insight{}, false
	}

	in := newInsight(a.Name(), coaching.InsightWarning, coaching.PriorityMedium,
		"Calorie deficit is inconsistent",
		fmt.Sprintf("You're in a calorie deficit about %.1f days per week; aim for at least %d.", perWeek, a.cfg.DeficitDaysPerWeek))
	in.Data["deficitDaysPerWeek"] = round1(perWeek)
	in.Data["targetDaysPerWeek"] = a.cfg.DeficitDaysPerWeek
	in.Data["loggedDays"] = len(perDay)
	in.ActionItems = []string{
		"Plan meals ahead on days you usually overeat",
		fmt.Sprintf("Keep daily intake under %.0f kcal", target),
	}
	in.Impact = "Steady weekly weight loss"
	return in, true
}

func (a *GoalAnalyzer) muscleGain(c *coaching.CoachingContext) (coaching.Insight, bool) {
	weeks := windowWeeks(c)

	strength := 0
	for _, act := range c.Activities {
		if act.IsStrength() {
			strength++
		}
	}
	highProteinDays := map[string]bool{}
	for _, m := range c.Meals {
		if m.ProteinG >= a.cfg.HighProteinMealGrams {
			highProteinDays[dayKey(m.Timestamp)] = true
		}
	}

	sessions := float64(strength) / weeks
	days := float64(len(highProteinDays)) / weeks
	lowSessions := sessions < float64(a.cfg.StrengthSessions)
	lowProtein := days < float64(a.cfg.HighProteinDays)
	if !lowSessions && !lowProtein {
		return coaching.Insight{}, false
	}

	in := newInsight(a.Name(), coaching.InsightRecommendation, coaching.PriorityMedium,
		"Build more muscle-building consistency",
		fmt.Sprintf("Per week you average %.1f strength sessions and %.1f high-protein days.", sessions, days))
	in.Data["strengthSessionsPerWeek"] = round1(sessions)
	in.Data["highProteinDaysPerWeek"] = round1(days)
	if lowSessions {
		in.ActionItems = append(in.ActionItems, fmt.Sprintf("Schedule at least %d strength sessions per week", a.cfg.StrengthSessions))
	}
	if lowProtein {
		in.ActionItems = append(in.ActionItems,
			fmt.Sprintf("Eat a meal with %.0f g+ protein on at least %d days per week", a.cfg.HighProteinMealGrams, a.cfg.HighProteinDays))
	}
	in.Impact = "Faster strength and muscle gains"
	return in, true
}

func (a *GoalAnalyzer) energyStability(c *coaching.CoachingContext) (coaching.Insight, bool) {
	levels := make([]float64, 0, len(c.Energy))
	for _, e := range c.Energy {
		levels = append(levels, float64(e.Level))
	}
	sd, ok := stddev(levels)
	if !ok || sd <= a.cfg.EnergyStdDevLimit {
		return coaching.Insight{}, false
	}

	in := newInsight(a.Name(), coaching.InsightWarning, coaching.PriorityMedium,
		"Your energy is unstable",
		fmt.Sprintf("Your energy readings swing widely (standard deviation %.1f).", sd))
	in.Data["energyStdDev"] = round1(sd)
	in.Data["limit"] = a.cfg.EnergyStdDevLimit
	in.ActionItems = []string{
		"Eat at regular intervals",
		"Pair carbs with protein at every meal",
		"Keep a consistent bedtime",
	}
	in.Impact = "More predictable energy through the day"
	return in, true
}
