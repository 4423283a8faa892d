package coaching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/store"
	"github.com/google/uuid"
)

// Store collections for user records.
const (
	CollectionProfiles   = "profiles"
	CollectionMeals      = "meals"
	CollectionSleep      = "sleep"
	CollectionEnergy     = "energy"
	CollectionActivities = "activity"
)

var (
	// ErrProfileNotFound is returned when a user has no profile.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrRecordExists is returned when a record id is already taken.
	// Logged records are immutable once stored.
	ErrRecordExists = errors.New("record already exists")
)

// Repository persists profiles and time-series records.
type Repository struct {
	store store.Store
	now   func() time.Time
}

// NewRepository creates a record repository over s.
func NewRepository(s store.Store) *Repository {
	return &Repository{store: s, now: time.Now}
}

// SaveProfile validates and writes a profile.
func (r *Repository) SaveProfile(ctx context.Context, p UserProfile) (UserProfile, error) {
	if err := p.Validate(); err != nil {
		return p, err
	}
	p.UpdatedAt = r.now().UTC()
	if err := store.PutJSON(ctx, r.store, CollectionProfiles, p.UserID, p); err != nil {
		return p, fmt.Errorf("save profile: %w", err)
	}
	return p, nil
}

// Profile loads a user's profile.
func (r *Repository) Profile(ctx context.Context, userID string) (UserProfile, error) {
	if err := ValidateUserID(userID); err != nil {
		return UserProfile{}, err
	}
	p, err := store.GetJSON[UserProfile](ctx, r.store, CollectionProfiles, userID)
	if errors.Is(err, store.ErrNotFound) {
		return p, ErrProfileNotFound
	}
	return p, err
}

// AddMeal validates and stores a meal, assigning an id if missing. A meal
// whose id already exists is rejected with ErrRecordExists.
func (r *Repository) AddMeal(ctx context.Context, m MealRecord) (MealRecord, error) {
	if err := m.Validate(); err != nil {
		return m, err
	}
	m.ID = ensureID(m.ID)
	return m, insert(ctx, r.store, CollectionMeals, m.UserID, m.ID, m)
}

// AddSleep validates and stores a sleep record.
func (r *Repository) AddSleep(ctx context.Context, s SleepRecord) (SleepRecord, error) {
	if err := s.Validate(); err != nil {
		return s, err
	}
	s.ID = ensureID(s.ID)
	return s, insert(ctx, r.store, CollectionSleep, s.UserID, s.ID, s)
}

// AddEnergy validates and stores an energy sample.
func (r *Repository) AddEnergy(ctx context.Context, e EnergySample) (EnergySample, error) {
	if err := e.Validate(); err != nil {
		return e, err
	}
	e.ID = ensureID(e.ID)
	return e, insert(ctx, r.store, CollectionEnergy, e.UserID, e.ID, e)
}

// AddActivity validates and stores an activity record.
func (r *Repository) AddActivity(ctx context.Context, a ActivityRecord) (ActivityRecord, error) {
	if err := a.Validate(); err != nil {
		return a, err
	}
	a.ID = ensureID(a.ID)
	return a, insert(ctx, r.store, CollectionActivities, a.UserID, a.ID, a)
}

// MealsSince returns the user's meals at or after since, oldest first.
func (r *Repository) MealsSince(ctx context.Context, userID string, since time.Time) ([]MealRecord, error) {
	return listSince(ctx, r.store, CollectionMeals, userID, since, func(m MealRecord) time.Time { return m.Timestamp })
}

// SleepSince returns the user's sleep records dated at or after since, oldest first.
func (r *Repository) SleepSince(ctx context.Context, userID string, since time.Time) ([]SleepRecord, error) {
	return listSince(ctx, r.store, CollectionSleep, userID, since, func(s SleepRecord) time.Time { return s.Date })
}

// EnergySince returns the user's energy samples at or after since, oldest first.
func (r *Repository) EnergySince(ctx context.Context, userID string, since time.Time) ([]EnergySample, error) {
	return listSince(ctx, r.store, CollectionEnergy, userID, since, func(e EnergySample) time.Time { return e.Timestamp })
}

// ActivitiesSince returns the user's activities dated at or after since, oldest first.
func (r *Repository) ActivitiesSince(ctx context.Context, userID string, since time.Time) ([]ActivityRecord, error) {
	return listSince(ctx, r.store, CollectionActivities, userID, since, func(a ActivityRecord) time.Time { return a.Date })
}

// insert stores v unless a record with the same id exists.
func insert[T any](ctx context.Context, s store.Store, collection, userID, id string, v T) error {
	err := store.UpdateJSON(ctx, s, collection, store.Key(userID, id), func(cur *T, exists bool) error {
		if exists {
			return ErrRecordExists
		}
		*cur = v
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s record %s: %w", collection, id, err)
	}
	return nil
}

func listSince[T any](ctx context.Context, s store.Store, collection, userID string, since time.Time, at func(T) time.Time) ([]T, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	all, err := store.ListJSON[T](ctx, s, collection, store.UserPrefix(userID))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	out := all[:0]
	for _, v := range all {
		if !at(v).Before(since) {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return at(out[i]).Before(at(out[j])) })
	return out, nil
}

func ensureID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
