package insights

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"go.uber.org/zap"
)

// DefaultWindowDays is the analysis window when none is configured.
const DefaultWindowDays = 14

// postMealOffset places an energy reading derived from a meal rating after
// the meal itself.
const postMealOffset = time.Hour

// Loader assembles the coaching context for a user.
type Loader struct {
	records    *coaching.Repository
	insights   *Repository
	windowDays int
	logger     *zap.Logger
}

// NewLoader creates a context loader reading windowDays of history.
func NewLoader(records *coaching.Repository, insights *Repository, windowDays int, logger *zap.Logger) *Loader {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{records: records, insights: insights, windowDays: windowDays, logger: logger.Named("loader")}
}

// Load returns the user's profile, the records inside the window ending at
// now and the insights still active at now. A user without a profile yields
// coaching.ErrProfileNotFound.
func (l *Loader) Load(ctx context.Context, userID string, now time.Time) (*coaching.CoachingContext, error) {
	profile, err := l.records.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	since := now.AddDate(0, 0, -l.windowDays)

	meals, err := l.records.MealsSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("load meals: %w", err)
	}
	sleep, err := l.records.SleepSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("load sleep: %w", err)
	}
	energy, err := l.records.EnergySince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("load energy: %w", err)
	}
	activities, err := l.records.ActivitiesSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	prior, err := l.insights.ListActive(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("load prior insights: %w", err)
	}

	meals = upTo(meals, now, func(m coaching.MealRecord) time.Time { return m.Timestamp })
	energy = upTo(append(energy, PostMealSamples(meals)...), now, func(e coaching.EnergySample) time.Time { return e.Timestamp })
	sort.SliceStable(energy, func(i, j int) bool { return energy[i].Timestamp.Before(energy[j].Timestamp) })

	l.logger.Debug("coaching context loaded",
		zap.String("user_id", userID),
		zap.Int("meals", len(meals)),
		zap.Int("sleep", len(sleep)),
		zap.Int("energy", len(energy)),
		zap.Int("activities", len(activities)),
		zap.Int("prior_insights", len(prior)))

	return &coaching.CoachingContext{
		Profile:       profile,
		Meals:         meals,
		Sleep:         sleep,
		Energy:        energy,
		Activities:    activities,
		PriorInsights: prior,
		WindowStart:   since,
		Now:           now,
	}, nil
}

// PostMealSamples turns meal energy ratings into post-meal energy samples
// one hour after each meal.
func PostMealSamples(meals []coaching.MealRecord) []coaching.EnergySample {
	var out []coaching.EnergySample
	for _, m := range meals {
		if m.PostMealEnergy == nil {
			continue
		}
		out = append(out, coaching.EnergySample{
			ID:        "meal-" + m.ID,
			UserID:    m.UserID,
			Timestamp: m.Timestamp.Add(postMealOffset),
			Level:     *m.PostMealEnergy,
			Context:   coaching.EnergyPostMeal,
		})
	}
	return out
}

// upTo drops records stamped after now.
func upTo[T any](records []T, now time.Time, at func(T) time.Time) []T {
	out := records[:0]
	for _, r := range records {
		if !at(r).After(now) {
			out = append(out, r)
		}
	}
	return out
}
