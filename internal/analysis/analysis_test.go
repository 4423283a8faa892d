package analysis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, 2+day, hour, minute, 0, 0, time.UTC)
}

func meal(day, hour int, t coaching.MealType, calories, protein, carbs float64) coaching.MealRecord {
	return coaching.MealRecord{
		Timestamp: at(day, hour, 0),
		Type:      t,
		Calories:  calories,
		ProteinG:  protein,
		CarbsG:    carbs,
	}
}

func energy(day, hour, level int) coaching.EnergySample {
	return coaching.EnergySample{Timestamp: at(day, hour, 0), Level: level}
}

func newContext(goal string) *coaching.CoachingContext {
	return &coaching.CoachingContext{
		Profile:     coaching.UserProfile{UserID: "u1", PrimaryGoal: goal},
		WindowStart: at(0, 0, 0),
		Now:         at(7, 0, 0),
	}
}

func findByTitle(t *testing.T, insights []coaching.Insight, title string) coaching.Insight {
	t.Helper()
	for _, in := range insights {
		if in.Title == title {
			return in
		}
	}
	require.Failf(t, "insight not found", "title %q", title)
	return coaching.Insight{}
}

func TestAll_Order(t *testing.T) {
	var names []string
	for _, a := range All(config.DefaultAnalysis()) {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{"energy", "sleep", "macro", "timing", "goal"}, names)
}

func TestAnalyzers_SparseContext(t *testing.T) {
	c := newContext("")
	for _, a := range All(config.DefaultAnalysis()) {
		assert.Empty(t, a.Analyze(c), a.Name())
	}
}

func TestEnergyAnalyzer_Crash(t *testing.T) {
	c := newContext("Lose weight")
	for i, lvl := range []int{8, 8, 7, 9} {
		c.Energy = append(c.Energy, energy(i, 8, lvl))
	}
	for i, lvl := range []int{5, 4, 6, 5} {
		c.Energy = append(c.Energy, energy(i, 15, lvl))
	}

	got := NewEnergyAnalyzer(config.DefaultAnalysis()).Analyze(c)
	require.Len(t, got, 1)

	crash := got[0]
	assert.Equal(t, coaching.InsightPattern, crash.Type)
	assert.Equal(t, coaching.PriorityHigh, crash.Priority)
	assert.Equal(t, 37, crash.Data["dropPercent"])
	assert.Equal(t, CauseMealTiming, crash.Data["primaryCause"])
	assert.Equal(t, 45.0, crash.Data["recommendedLunchCarbs"])
	assert.NotEmpty(t, crash.ActionItems)
	assert.NoError(t, crash.Validate())
}

func TestEnergyAnalyzer_HighCarbLunchCause(t *testing.T) {
	c := newContext("Lose weight")
	c.Energy = []coaching.EnergySample{energy(0, 9, 9), energy(0, 14, 5)}
	c.Meals = []coaching.MealRecord{
		meal(0, 12, coaching.MealLunch, 800, 20, 90),
		meal(1, 12, coaching.MealLunch, 800, 20, 85),
		meal(2, 12, coaching.MealLunch, 600, 30, 30),
	}

	got := NewEnergyAnalyzer(config.DefaultAnalysis()).Analyze(c)
	require.Len(t, got, 1)
	assert.Equal(t, CauseHighCarb, got[0].Data["primaryCause"])
}

func TestEnergyAnalyzer_NoCrashAtThreshold(t *testing.T) {
	c := newContext("Lose weight")
	c.Energy = []coaching.EnergySample{energy(0, 9, 8), energy(0, 14, 6)}

	assert.Empty(t, NewEnergyAnalyzer(config.DefaultAnalysis()).Analyze(c))
}

func TestEnergyAnalyzer_BreakfastRule(t *testing.T) {
	cfg := config.DefaultAnalysis()

	t.Run("low protein breakfast", func(t *testing.T) {
		c := newContext("More energy")
		c.Energy = []coaching.EnergySample{energy(0, 9, 6), energy(1, 9, 6)}
		c.Meals = []coaching.MealRecord{meal(0, 8, coaching.MealBreakfast, 400, 10, 60)}

		got := NewEnergyAnalyzer(cfg).Analyze(c)
		require.Len(t, got, 1)
		assert.Equal(t, coaching.InsightRecommendation, got[0].Type)
		assert.Equal(t, 10.0, got[0].Data["avgBreakfastProteinG"])
	})

	t.Run("no breakfast logged", func(t *testing.T) {
		c := newContext("More energy")
		c.Energy = []coaching.EnergySample{energy(0, 9, 5)}

		got := NewEnergyAnalyzer(cfg).Analyze(c)
		require.Len(t, got, 1)
		assert.NotContains(t, got[0].Data, "avgBreakfastProteinG")
	})

	t.Run("protein on target", func(t *testing.T) {
		c := newContext("More energy")
		c.Energy = []coaching.EnergySample{energy(0, 9, 6)}
		c.Meals = []coaching.MealRecord{meal(0, 8, coaching.MealBreakfast, 450, 35, 30)}

		assert.Empty(t, NewEnergyAnalyzer(cfg).Analyze(c))
	})

	t.Run("goal not about energy", func(t *testing.T) {
		c := newContext("Build muscle")
		c.Energy = []coaching.EnergySample{energy(0, 9, 5)}

		assert.Empty(t, NewEnergyAnalyzer(cfg).Analyze(c))
	})
}

func TestDropPercent(t *testing.T) {
	assert.Equal(t, 37, DropPercent(8, 5))
	assert.Equal(t, 0, DropPercent(0, 5))
	assert.Equal(t, 50, DropPercent(8, 4))
}

func TestSleepAnalyzer_LateDinner(t *testing.T) {
	c := newContext("Sleep better")
	c.Meals = []coaching.MealRecord{
		meal(0, 19, coaching.MealDinner, 700, 40, 60),
		{Timestamp: at(1, 21, 30), Type: coaching.MealDinner, Calories: 700},
	}
	c.Sleep = []coaching.SleepRecord{
		{Date: at(0, 0, 0), BedTime: at(0, 23, 0), DurationHours: 8, Quality: 8},
		{Date: at(1, 0, 0), BedTime: at(1, 23, 0), DurationHours: 7, Quality: 5},
	}

	got := NewSleepAnalyzer(config.DefaultAnalysis()).Analyze(c)
	require.Len(t, got, 1)

	w := got[0]
	assert.Equal(t, coaching.InsightWarning, w.Type)
	assert.Equal(t, 37, w.Data["qualityLossPercent"])
	assert.Equal(t, DinnerCutoff, w.Data["cutoff"])
	assert.Contains(t, w.ActionItems, "Finish dinner by 7 PM")
}

func TestSleepAnalyzer_PreSleepMealFallback(t *testing.T) {
	early := at(0, 18, 0)
	late := at(1, 22, 0)
	c := newContext("Sleep better")
	c.Sleep = []coaching.SleepRecord{
		{Date: at(0, 0, 0), BedTime: at(0, 23, 0), Quality: 9, PreSleepMealTime: &early},
		{Date: at(1, 0, 0), BedTime: at(1, 23, 0), Quality: 4, PreSleepMealTime: &late},
	}

	got := NewSleepAnalyzer(config.DefaultAnalysis()).Analyze(c)
	require.Len(t, got, 1)
	assert.Equal(t, 55, got[0].Data["qualityLossPercent"])
}

func TestSleepAnalyzer_NeedsBothGroups(t *testing.T) {
	c := newContext("Sleep better")
	c.Meals = []coaching.MealRecord{meal(0, 18, coaching.MealDinner, 700, 40, 60)}
	c.Sleep = []coaching.SleepRecord{{Date: at(0, 0, 0), BedTime: at(0, 23, 0), Quality: 9}}

	assert.Empty(t, NewSleepAnalyzer(config.DefaultAnalysis()).Analyze(c))
}

func TestSleepAnalyzer_Caffeine(t *testing.T) {
	c := newContext("Sleep better")
	c.Meals = []coaching.MealRecord{
		{Timestamp: at(0, 9, 0), Type: coaching.MealBreakfast, Foods: []coaching.Food{{Name: "Coffee"}}},
		{Timestamp: at(0, 15, 0), Type: coaching.MealSnack, Foods: []coaching.Food{{Name: "Iced Latte"}}},
		{Timestamp: at(1, 16, 0), Type: coaching.MealSnack, Description: "Matcha and a cookie"},
	}

	got := NewSleepAnalyzer(config.DefaultAnalysis()).Analyze(c)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"latte", "matcha"}, got[0].Data["substances"])
	assert.Equal(t, "2 PM", got[0].Data["cutoff"])
	assert.Equal(t, 2, got[0].Data["occurrences"])
}

func TestCaffeineIn(t *testing.T) {
	tests := []struct {
		name string
		meal coaching.MealRecord
		want []string
	}{
		{name: "chocolate is not cola", meal: coaching.MealRecord{Foods: []coaching.Food{{Name: "Chocolate chip cookie"}}}},
		{name: "decaf coffee", meal: coaching.MealRecord{Foods: []coaching.Food{{Name: "Decaf coffee"}}}},
		{name: "decaffeinated latte", meal: coaching.MealRecord{Description: "decaffeinated latte"}},
		{name: "caffeine-free cola", meal: coaching.MealRecord{Foods: []coaching.Food{{Name: "Caffeine-free Cola"}}}},
		{name: "caffeine free tea", meal: coaching.MealRecord{Description: "green tea, caffeine free"}, want: []string{"green tea"}},
		{name: "coca-cola", meal: coaching.MealRecord{Foods: []coaching.Food{{Name: "Coca-Cola"}}}, want: []string{"cola"}},
		{name: "energy drink phrase", meal: coaching.MealRecord{Description: "Energy drink before the gym"}, want: []string{"energy drink"}},
		{name: "energy alone", meal: coaching.MealRecord{Description: "energy bar"}},
		{name: "pre-workout", meal: coaching.MealRecord{Foods: []coaching.Food{{Name: "pre-workout shake"}}}, want: []string{"pre-workout"}},
		{name: "decaf then regular", meal: coaching.MealRecord{Description: "decaf coffee then a coffee refill"}, want: []string{"coffee"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, caffeineIn(tt.meal))
		})
	}
}

func TestSleepAnalyzer_CaffeineFreeLateFoodsIgnored(t *testing.T) {
	c := newContext("Sleep better")
	c.Meals = []coaching.MealRecord{
		{Timestamp: at(0, 15, 0), Type: coaching.MealSnack, Foods: []coaching.Food{{Name: "chocolate chip cookie"}}},
		{Timestamp: at(0, 16, 0), Type: coaching.MealSnack, Foods: []coaching.Food{{Name: "decaf coffee"}}},
	}

	assert.Empty(t, NewSleepAnalyzer(config.DefaultAnalysis()).Analyze(c))
}

func TestClockLabel(t *testing.T) {
	assert.Equal(t, "12 AM", clockLabel(0))
	assert.Equal(t, "9 AM", clockLabel(9))
	assert.Equal(t, "12 PM", clockLabel(12))
	assert.Equal(t, "2 PM", clockLabel(14))
}

func TestProteinGapGrams(t *testing.T) {
	assert.InDelta(t, 50.0, ProteinGapGrams(25, 15, 2000), 1e-9)
}

func TestMacroAnalyzer_ProteinDeficiency(t *testing.T) {
	c := newContext("More energy")
	// 75 g protein of 2000 kcal is 15%; the energy protocol targets 25%.
	c.Meals = []coaching.MealRecord{
		meal(0, 12, coaching.MealLunch, 1000, 40, 100),
		meal(0, 19, coaching.MealDinner, 1000, 35, 100),
	}

	got := NewMacroAnalyzer(config.DefaultAnalysis()).Analyze(c)
	require.Len(t, got, 1)

	in := got[0]
	assert.Equal(t, coaching.PriorityHigh, in.Priority)
	assert.InDelta(t, 15.0, in.Data["actualProteinPct"], 1e-9)
	assert.InDelta(t, 25.0, in.Data["targetProteinPct"], 1e-9)
	assert.InDelta(t, 50.0, in.Data["gapGrams"], 1e-9)
	assert.InDelta(t, 2000.0, in.Data["totalCalories"], 1e-9)
}

func TestMacroAnalyzer_ProteinGapUsesWindowTotal(t *testing.T) {
	c := newContext("More energy")
	// 2000 kcal at 15% protein, spread over two days.
	c.Meals = []coaching.MealRecord{
		meal(0, 12, coaching.MealLunch, 1000, 37.5, 100),
		meal(1, 12, coaching.MealLunch, 1000, 37.5, 100),
	}

	got := NewMacroAnalyzer(config.DefaultAnalysis()).Analyze(c)
	require.Len(t, got, 1)

	in := got[0]
	assert.InDelta(t, 2000.0, in.Data["totalCalories"], 1e-9)
	assert.Equal(t, 2, in.Data["loggedDays"])
	assert.InDelta(t, 50.0, in.Data["gapGrams"], 1e-9)
	assert.InDelta(t, 25.0, in.Data["dailyGapGrams"], 1e-9)
	assert.Contains(t, in.ActionItems[0], "25 g")
}

func TestMacroAnalyzer_WithinTolerance(t *testing.T) {
	c := newContext("More energy")
	// 21% protein is inside the 5 point band below 25%.
	c.Meals = []coaching.MealRecord{meal(0, 12, coaching.MealLunch, 1000, 52.5, 100)}

	assert.Empty(t, NewMacroAnalyzer(config.DefaultAnalysis()).Analyze(c))
}

func TestMacroAnalyzer_BreakfastCarbDominance(t *testing.T) {
	c := newContext("Boost energy")
	c.Meals = []coaching.MealRecord{meal(0, 8, coaching.MealBreakfast, 400, 25, 70)}

	got := NewMacroAnalyzer(config.DefaultAnalysis()).Analyze(c)
	require.Len(t, got, 1)
	assert.Equal(t, coaching.InsightRecommendation, got[0].Type)
	assert.InDelta(t, 70.0, got[0].Data["breakfastCarbPct"], 1e-9)

	c.Profile.PrimaryGoal = "General health"
	assert.Empty(t, NewMacroAnalyzer(config.DefaultAnalysis()).Analyze(c))
}

func TestTimingAnalyzer_BreakfastShift(t *testing.T) {
	c := newContext("General health")
	c.Meals = []coaching.MealRecord{
		meal(0, 11, coaching.MealBreakfast, 400, 25, 40),
		meal(1, 11, coaching.MealBreakfast, 400, 25, 40),
	}

	got := NewTimingAnalyzer(config.DefaultAnalysis()).Analyze(c)
	require.Len(t, got, 1)
	assert.Equal(t, "Adjust your breakfast time", got[0].Title)
	assert.InDelta(t, 3.0, got[0].Data["deviationHours"], 1e-9)
}

func TestTimingAnalyzer_FastingOpportunity(t *testing.T) {
	meals := []coaching.MealRecord{
		meal(0, 13, coaching.MealLunch, 600, 30, 50),
		meal(0, 20, coaching.MealDinner, 700, 35, 60),
		meal(1, 7, coaching.MealBreakfast, 400, 25, 40),
		meal(1, 13, coaching.MealLunch, 600, 30, 50),
	}

	c := newContext("Lose weight")
	c.Meals = meals
	got := NewTimingAnalyzer(config.DefaultAnalysis()).Analyze(c)
	require.Len(t, got, 1)
	assert.Equal(t, coaching.InsightOpportunity, got[0].Type)
	assert.Equal(t, coaching.PriorityLow, got[0].Priority)
	assert.InDelta(t, 11.0, got[0].Data["avgFastingHours"], 1e-9)

	// A 12 hour target is only one hour short.
	c = newContext("General health")
	c.Meals = meals
	for _, in := range NewTimingAnalyzer(config.DefaultAnalysis()).Analyze(c) {
		assert.NotEqual(t, coaching.InsightOpportunity, in.Type)
	}
}

func TestOvernightGaps(t *testing.T) {
	meals := []coaching.MealRecord{
		meal(1, 7, coaching.MealBreakfast, 0, 0, 0),
		meal(0, 20, coaching.MealDinner, 0, 0, 0),
		meal(0, 13, coaching.MealLunch, 0, 0, 0),
	}
	assert.Equal(t, []float64{11}, OvernightGaps(meals, 8))
	assert.Equal(t, coaching.MealBreakfast, meals[0].Type)
}

func TestClockTime(t *testing.T) {
	assert.Equal(t, "7:30", clockTime(7.5))
	assert.Equal(t, "8:00", clockTime(8))
}

// adherentContext logs 5 x 400 kcal meals per day at 25% protein with
// breakfast at 8:00 and three 8 hour nights.
func adherentContext(goal string, days int) *coaching.CoachingContext {
	c := newContext(goal)
	c.Profile.CalorieTarget = 2000
	for d := 0; d < days; d++ {
		c.Meals = append(c.Meals,
			meal(d, 8, coaching.MealBreakfast, 400, 25, 45),
			meal(d, 11, coaching.MealSnack, 400, 25, 45),
			meal(d, 13, coaching.MealLunch, 400, 25, 45),
			meal(d, 16, coaching.MealSnack, 400, 25, 45),
			meal(d, 19, coaching.MealDinner, 400, 25, 45),
		)
	}
	for d := 0; d < 3; d++ {
		c.Sleep = append(c.Sleep, coaching.SleepRecord{Date: at(d, 0, 0), BedTime: at(d, 23, 0), DurationHours: 8, Quality: 8})
	}
	return c
}

func TestCalculateAdherenceScore(t *testing.T) {
	cfg := config.DefaultAnalysis()

	full := CalculateAdherenceScore(adherentContext("General health", 2), cfg)
	assert.Equal(t, 100, full.Score)

	poor := adherentContext("General health", 2)
	poor.Profile.CalorieTarget = 3000
	poor.Sleep = nil
	for i := range poor.Meals {
		poor.Meals[i].ProteinG = 10
		if poor.Meals[i].Type == coaching.MealBreakfast {
			poor.Meals[i].Timestamp = poor.Meals[i].Timestamp.Add(4 * time.Hour)
		}
	}
	assert.Equal(t, 0, CalculateAdherenceScore(poor, cfg).Score)

	partial := adherentContext("General health", 2)
	partial.Profile.CalorieTarget = 0
	got := CalculateAdherenceScore(partial, cfg)
	assert.Equal(t, 75, got.Score)
	assert.False(t, got.Checks[CheckCalories])
}

func TestCalculateAdherenceScore_RangeAndStep(t *testing.T) {
	cfg := config.DefaultAnalysis()
	contexts := []*coaching.CoachingContext{
		newContext(""),
		adherentContext("Lose weight", 1),
		adherentContext("Build muscle", 3),
		adherentContext("More energy", 7),
	}
	contexts[1].Profile.CalorieTarget = 1500

	for _, c := range contexts {
		s := CalculateAdherenceScore(c, cfg).Score
		assert.GreaterOrEqual(t, s, 0)
		assert.LessOrEqual(t, s, 100)
		assert.Zero(t, s%25)
	}
}

func TestGoalAnalyzer_Adherence(t *testing.T) {
	a := NewGoalAnalyzer(config.DefaultAnalysis())

	got := a.Analyze(adherentContext("General health", 2))
	require.Len(t, got, 1)
	assert.Equal(t, coaching.InsightAchievement, got[0].Type)
	assert.Equal(t, 100, got[0].Data["score"])

	poor := adherentContext("General health", 2)
	poor.Profile.CalorieTarget = 0
	poor.Sleep = nil
	got = a.Analyze(poor)
	require.Len(t, got, 1)
	assert.Equal(t, coaching.InsightWarning, got[0].Type)
	assert.Len(t, got[0].ActionItems, 2)
}

func TestGoalAnalyzer_RequiresMinimumMeals(t *testing.T) {
	c := newContext("General health")
	c.Meals = []coaching.MealRecord{meal(0, 8, coaching.MealBreakfast, 400, 25, 45)}

	assert.Empty(t, NewGoalAnalyzer(config.DefaultAnalysis()).Analyze(c))
}

func TestGoalAnalyzer_WeightLossDeficit(t *testing.T) {
	c := adherentContext("Lose weight", 7)
	c.Profile.CalorieTarget = 1800

	got := NewGoalAnalyzer(config.DefaultAnalysis()).Analyze(c)
	in := findByTitle(t, got, "Calorie deficit is inconsistent")
	assert.InDelta(t, 0.0, in.Data["deficitDaysPerWeek"], 1e-9)
	assert.Equal(t, 7, in.Data["loggedDays"])
}

func TestGoalAnalyzer_WeightLossWithoutMeals(t *testing.T) {
	c := newContext("Lose weight")
	c.Profile.CalorieTarget = 1800
	cfg := config.DefaultAnalysis()
	cfg.MinMealsForAdherence = 0

	got := NewGoalAnalyzer(cfg).Analyze(c)
	for _, in := range got {
		assert.NotEqual(t, "Calorie deficit is inconsistent", in.Title)
	}
	_, err := json.Marshal(got)
	require.NoError(t, err)
}

func TestGoalAnalyzer_MuscleGain(t *testing.T) {
	c := adherentContext("Build muscle", 2)
	for i := range c.Meals {
		c.Meals[i].ProteinG = 20
	}
	c.Activities = []coaching.ActivityRecord{
		{Date: at(0, 18, 0), Type: "Strength training", DurationMinutes: 45},
		{Date: at(1, 18, 0), Type: "Running", DurationMinutes: 30},
	}

	got := NewGoalAnalyzer(config.DefaultAnalysis()).Analyze(c)
	in := findByTitle(t, got, "Build more muscle-building consistency")
	assert.Len(t, in.ActionItems, 2)
	assert.InDelta(t, 1.0, in.Data["strengthSessionsPerWeek"], 1e-9)
}

func TestGoalAnalyzer_EnergyStability(t *testing.T) {
	c := adherentContext("More energy", 2)
	c.Energy = []coaching.EnergySample{energy(0, 9, 1), energy(0, 15, 9), energy(1, 9, 1), energy(1, 15, 9)}

	got := NewGoalAnalyzer(config.DefaultAnalysis()).Analyze(c)
	in := findByTitle(t, got, "Your energy is unstable")
	assert.InDelta(t, 4.0, in.Data["energyStdDev"], 1e-9)

	c.Energy = []coaching.EnergySample{energy(0, 9, 6), energy(0, 15, 7)}
	for _, in := range NewGoalAnalyzer(config.DefaultAnalysis()).Analyze(c) {
		assert.NotEqual(t, "Your energy is unstable", in.Title)
	}
}

func TestProtocolFor(t *testing.T) {
	assert.Equal(t, 30.0, ProtocolFor("Lose weight").ProteinPct)
	assert.Equal(t, 7.5, ProtocolFor("More energy").OptimalBreakfastHour)
	assert.Equal(t, coaching.GoalGeneralHealth, ProtocolFor("").Goal)
}
