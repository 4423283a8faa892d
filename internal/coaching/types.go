// Package coaching defines the user records and insight types shared by the
// analyzers, the insight engine and the HTTP API.
package coaching

import (
	"strings"
	"time"
)

// MealType classifies a logged meal.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

// EnergyContext tags when an energy reading was taken.
type EnergyContext string

const (
	EnergyMorning   EnergyContext = "morning"
	EnergyAfternoon EnergyContext = "afternoon"
	EnergyEvening   EnergyContext = "evening"
	EnergyPostMeal  EnergyContext = "post_meal"
	EnergyCheckIn   EnergyContext = "check_in"
)

// Intensity of an activity session.
type Intensity string

const (
	IntensityLow      Intensity = "low"
	IntensityModerate Intensity = "moderate"
	IntensityHigh     Intensity = "high"
)

// InsightType classifies a generated insight.
type InsightType string

const (
	InsightPattern        InsightType = "pattern"
	InsightRecommendation InsightType = "recommendation"
	InsightWarning        InsightType = "warning"
	InsightAchievement    InsightType = "achievement"
	InsightOpportunity    InsightType = "opportunity"
)

// Priority orders insights; High sorts first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the sort rank of p (0 for high). Unknown priorities rank last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// Valid reports whether p is one of high, medium or low.
func (p Priority) Valid() bool {
	return p.Rank() < 3
}

// Normalized goal keys used to select a nutrition protocol.
const (
	GoalWeightLoss    = "weight_loss"
	GoalMuscleGain    = "muscle_gain"
	GoalEnergy        = "energy"
	GoalBetterSleep   = "better_sleep"
	GoalGeneralHealth = "general_health"
)

// NormalizeGoal maps a free-form goal ("Lose weight", "more energy") to one of
// the normalized goal keys.
func NormalizeGoal(goal string) string {
	g := strings.ToLower(goal)
	switch {
	case strings.Contains(g, "muscle") || strings.Contains(g, "strength") || strings.Contains(g, "gain"):
		return GoalMuscleGain
	case strings.Contains(g, "weight") || strings.Contains(g, "lose") || strings.Contains(g, "fat"):
		return GoalWeightLoss
	case strings.Contains(g, "energy"):
		return GoalEnergy
	case strings.Contains(g, "sleep"):
		return GoalBetterSleep
	default:
		return GoalGeneralHealth
	}
}

// CurrentMetrics are the slow-changing measurements on a profile.
type CurrentMetrics struct {
	WeightKg        float64 `json:"weightKg,omitempty"`
	EnergyAvg       float64 `json:"energyAvg,omitempty"`
	SleepQualityAvg float64 `json:"sleepQualityAvg,omitempty"`
}

// UserProfile is the user's goals and preferences.
type UserProfile struct {
	UserID         string            `json:"userId"`
	PrimaryGoal    string            `json:"primaryGoal"`
	SecondaryGoals []string          `json:"secondaryGoals,omitempty"`
	Restrictions   []string          `json:"restrictions,omitempty"`
	Preferences    map[string]string `json:"preferences,omitempty"`
	CalorieTarget  float64           `json:"calorieTarget,omitempty"`
	CurrentMetrics CurrentMetrics    `json:"currentMetrics"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// GoalMentions reports whether the primary goal contains word, case-insensitively.
func (p UserProfile) GoalMentions(word string) bool {
	return strings.Contains(strings.ToLower(p.PrimaryGoal), strings.ToLower(word))
}

// Food is one item in a meal.
type Food struct {
	Name  string  `json:"name"`
	Grams float64 `json:"grams,omitempty"`
}

// MealRecord is one logged meal.
type MealRecord struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Timestamp      time.Time `json:"timestamp"`
	Type           MealType  `json:"type"`
	Description    string    `json:"description,omitempty"`
	Foods          []Food    `json:"foods,omitempty"`
	ProteinG       float64   `json:"proteinG"`
	CarbsG         float64   `json:"carbsG"`
	FatG           float64   `json:"fatG"`
	Calories       float64   `json:"calories"`
	PostMealEnergy *int      `json:"postMealEnergy,omitempty"`
	Satisfaction   *int      `json:"satisfaction,omitempty"`
}

// SleepRecord is one night's sleep. Date is the calendar day the night began.
type SleepRecord struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	Date             time.Time  `json:"date"`
	BedTime          time.Time  `json:"bedTime"`
	DurationHours    float64    `json:"durationHours"`
	Quality          int        `json:"quality"`
	PreSleepMealTime *time.Time `json:"preSleepMealTime,omitempty"`
	PreSleepMealSize string     `json:"preSleepMealSize,omitempty"`
}

// EnergySample is one subjective energy reading on a 1-10 scale.
type EnergySample struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	Timestamp time.Time     `json:"timestamp"`
	Level     int           `json:"level"`
	Context   EnergyContext `json:"context"`
}

// ActivityRecord is one exercise session.
type ActivityRecord struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Date              time.Time `json:"date"`
	Type              string    `json:"type"`
	DurationMinutes   int       `json:"durationMinutes"`
	Intensity         Intensity `json:"intensity"`
	PerformanceRating *int      `json:"performanceRating,omitempty"`
}

// IsStrength reports whether the activity counts as a strength session.
func (a ActivityRecord) IsStrength() bool {
	t := strings.ToLower(a.Type)
	for _, kw := range []string{"strength", "weight", "resistance", "lift"} {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// InsightFeedback is the user's one-time reaction to an insight.
type InsightFeedback struct {
	Helpful   bool      `json:"helpful"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Insight is one generated coaching recommendation.
type Insight struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	Type        InsightType      `json:"type"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Data        map[string]any   `json:"data,omitempty"`
	ActionItems []string         `json:"actionItems"`
	Priority    Priority         `json:"priority"`
	Impact      string           `json:"impact,omitempty"`
	Source      string           `json:"source"`
	CreatedAt   time.Time        `json:"createdAt"`
	ExpiresAt   time.Time        `json:"expiresAt"`
	Feedback    *InsightFeedback `json:"feedback,omitempty"`
}

// Expired reports whether the insight is past its retention window at now.
func (i Insight) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// CoachingContext is the immutable snapshot the analyzers read.
type CoachingContext struct {
	Profile       UserProfile      `json:"profile"`
	Meals         []MealRecord     `json:"meals"`
	Sleep         []SleepRecord    `json:"sleep"`
	Energy        []EnergySample   `json:"energy"`
	Activities    []ActivityRecord `json:"activities"`
	PriorInsights []Insight        `json:"priorInsights,omitempty"`
	WindowStart   time.Time        `json:"windowStart"`
	Now           time.Time        `json:"now"`
}

// MealsOfType returns the meals of type t in their original order.
func (c *CoachingContext) MealsOfType(t MealType) []MealRecord {
	var out []MealRecord
	for _, m := range c.Meals {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}
