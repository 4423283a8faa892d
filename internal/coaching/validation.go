package coaching

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/coachd/internal/store"
)

// MaxUserIDLength bounds caller identities.
const MaxUserIDLength = 128

// ValidationError reports a malformed record rejected at the ingress boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateUserID checks a caller identity. User ids prefix store keys, so
// the key separator and control characters are rejected.
func ValidateUserID(id string) error {
	return ValidateUserIDField("userId", id)
}

// ValidateUserIDField is ValidateUserID reporting failures against field.
func ValidateUserIDField(field, id string) error {
	switch {
	case id == "":
		return invalid(field, "required")
	case len(id) > MaxUserIDLength:
		return invalid(field, "must be at most %d bytes", MaxUserIDLength)
	case strings.Contains(id, store.KeySeparator):
		return invalid(field, "must not contain %q", store.KeySeparator)
	case strings.IndexFunc(id, unicode.IsControl) >= 0:
		return invalid(field, "must not contain control characters")
	}
	return nil
}

func inRange(v, lo, hi int) bool { return v >= lo && v <= hi }

// Validate checks a profile.
func (p UserProfile) Validate() error {
	if err := ValidateUserID(p.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(p.PrimaryGoal) == "" {
		return invalid("primaryGoal", "required")
	}
	if p.CalorieTarget < 0 {
		return invalid("calorieTarget", "must not be negative")
	}
	return nil
}

// Validate checks a meal record.
func (m MealRecord) Validate() error {
	if err := ValidateUserID(m.UserID); err != nil {
		return err
	}
	if m.Timestamp.IsZero() {
		return invalid("timestamp", "required")
	}
	switch m.Type {
	case MealBreakfast, MealLunch, MealDinner, MealSnack:
	default:
		return invalid("type", "unknown meal type %q", m.Type)
	}
	if m.ProteinG < 0 || m.CarbsG < 0 || m.FatG < 0 || m.Calories < 0 {
		return invalid("nutrition", "macros and calories must not be negative")
	}
	if m.PostMealEnergy != nil && !inRange(*m.PostMealEnergy, 1, 10) {
		return invalid("postMealEnergy", "must be 1-10, got %d", *m.PostMealEnergy)
	}
	if m.Satisfaction != nil && !inRange(*m.Satisfaction, 1, 10) {
		return invalid("satisfaction", "must be 1-10, got %d", *m.Satisfaction)
	}
	return nil
}

// Validate checks a sleep record.
func (s SleepRecord) Validate() error {
	if err := ValidateUserID(s.UserID); err != nil {
		return err
	}
	if s.Date.IsZero() {
		return invalid("date", "required")
	}
	if s.DurationHours <= 0 || s.DurationHours > 24 {
		return invalid("durationHours", "must be in (0, 24], got %g", s.DurationHours)
	}
	if !inRange(s.Quality, 1, 10) {
		return invalid("quality", "must be 1-10, got %d", s.Quality)
	}
	return nil
}

// Validate checks an energy sample.
func (e EnergySample) Validate() error {
	if err := ValidateUserID(e.UserID); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		return invalid("timestamp", "required")
	}
	if !inRange(e.Level, 1, 10) {
		return invalid("level", "must be 1-10, got %d", e.Level)
	}
	switch e.Context {
	case EnergyMorning, EnergyAfternoon, EnergyEvening, EnergyPostMeal, EnergyCheckIn, "":
	default:
		return invalid("context", "unknown context %q", e.Context)
	}
	return nil
}

// Validate checks an activity record.
func (a ActivityRecord) Validate() error {
	if err := ValidateUserID(a.UserID); err != nil {
		return err
	}
	if a.Date.IsZero() {
		return invalid("date", "required")
	}
	if strings.TrimSpace(a.Type) == "" {
		return invalid("type", "required")
	}
	if a.DurationMinutes <= 0 {
		return invalid("durationMinutes", "must be positive")
	}
	switch a.Intensity {
	case IntensityLow, IntensityModerate, IntensityHigh, "":
	default:
		return invalid("intensity", "unknown intensity %q", a.Intensity)
	}
	if a.PerformanceRating != nil && !inRange(*a.PerformanceRating, 1, 10) {
		return invalid("performanceRating", "must be 1-10, got %d", *a.PerformanceRating)
	}
	return nil
}

// Validate checks the insight invariants: a known type, a valid priority,
// a title and at least one action item.
func (i Insight) Validate() error {
	switch i.Type {
	case InsightPattern, InsightRecommendation, InsightWarning, InsightAchievement, InsightOpportunity:
	default:
		return invalid("type", "unknown insight type %q", i.Type)
	}
	if !i.Priority.Valid() {
		return invalid("priority", "must be high, medium or low, got %q", i.Priority)
	}
	if i.Title == "" {
		return invalid("title", "required")
	}
	if len(i.ActionItems) == 0 {
		return invalid("actionItems", "at least one action item required")
	}
	return nil
}
