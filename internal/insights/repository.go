package insights

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/store"
)

// CollectionInsights holds generated insights keyed by user/id.
const CollectionInsights = "insights"

var (
	// ErrInsightNotFound is returned for an unknown insight.
	ErrInsightNotFound = errors.New("insight not found")

	// ErrFeedbackExists is returned when an insight already has feedback.
	ErrFeedbackExists = errors.New("insight feedback already recorded")
)

// Repository persists generated insights.
type Repository struct {
	store store.Store
}

// NewRepository creates an insight repository over s.
func NewRepository(s store.Store) *Repository {
	return &Repository{store: s}
}

// Save writes every insight. Writes are keyed by id, so saving the same batch
// twice is harmless.
func (r *Repository) Save(ctx context.Context, insights []coaching.Insight) error {
	for _, in := range insights {
		if err := coaching.ValidateUserID(in.UserID); err != nil {
			return err
		}
		if err := store.PutJSON(ctx, r.store, CollectionInsights, store.Key(in.UserID, in.ID), in); err != nil {
			return fmt.Errorf("save insight %s: %w", in.ID, err)
		}
	}
	return nil
}

// Get loads one insight.
func (r *Repository) Get(ctx context.Context, userID, id string) (coaching.Insight, error) {
	if err := coaching.ValidateUserID(userID); err != nil {
		return coaching.Insight{}, err
	}
	in, err := store.GetJSON[coaching.Insight](ctx, r.store, CollectionInsights, store.Key(userID, id))
	if errors.Is(err, store.ErrNotFound) {
		return in, fmt.Errorf("%w: %s", ErrInsightNotFound, id)
	}
	return in, err
}

// ListActive returns the user's insights that have not expired at now,
// newest first and by priority within a batch.
func (r *Repository) ListActive(ctx context.Context, userID string, now time.Time) ([]coaching.Insight, error) {
	if err := coaching.ValidateUserID(userID); err != nil {
		return nil, err
	}
	all, err := store.ListJSON[coaching.Insight](ctx, r.store, CollectionInsights, store.UserPrefix(userID))
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	active := make([]coaching.Insight, 0, len(all))
	for _, in := range all {
		if !in.Expired(now) {
			active = append(active, in)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.After(active[j].CreatedAt)
		}
		return active[i].Priority.Rank() < active[j].Priority.Rank()
	})
	return active, nil
}

// AttachFeedback records the user's reaction to an insight. Feedback can be
// given once.
func (r *Repository) AttachFeedback(ctx context.Context, userID, id string, fb coaching.InsightFeedback) (coaching.Insight, error) {
	if err := coaching.ValidateUserID(userID); err != nil {
		return coaching.Insight{}, err
	}
	var out coaching.Insight
	err := store.UpdateJSON(ctx, r.store, CollectionInsights, store.Key(userID, id), func(in *coaching.Insight, exists bool) error {
		if !exists {
			return ErrInsightNotFound
		}
		if in.Feedback != nil {
			return ErrFeedbackExists
		}
		in.Feedback = &fb
		out = *in
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("attach feedback to insight %s: %w", id, err)
	}
	return out, nil
}

// PurgeExpired deletes every insight expired at now and returns how many
// were removed.
func (r *Repository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	all, err := store.ListJSON[coaching.Insight](ctx, r.store, CollectionInsights, "")
	if err != nil {
		return 0, fmt.Errorf("list insights: %w", err)
	}
	n := 0
	for _, in := range all {
		if !in.Expired(now) {
			continue
		}
		if err := r.store.Delete(ctx, CollectionInsights, store.Key(in.UserID, in.ID)); err != nil {
			return n, fmt.Errorf("delete insight %s: %w", in.ID, err)
		}
		n++
	}
	return n, nil
}
