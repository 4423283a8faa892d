package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/coachd/internal/store"
)

// ErrABTestNotFound is returned for an unknown test name.
var ErrABTestNotFound = errors.New("ab test not found")

// RegisterABTest stores a test definition with status running. Traffic
// splitting is left to the caller.
func (m *Monitor) RegisterABTest(ctx context.Context, t ABTest) (ABTest, error) {
	if err := t.Validate(); err != nil {
		return t, err
	}
	t.Status = ABStatusRunning
	t.CreatedAt = m.now().UTC()

	err := store.UpdateJSON(ctx, m.store, CollectionABTests, t.Name, func(cur *ABTest, exists bool) error {
		if exists {
			return ErrABTestExists
		}
		*cur = t
		return nil
	})
	if err != nil {
		return t, fmt.Errorf("register ab test %s: %w", t.Name, err)
	}
	return t, nil
}

// ABTest looks up a registered test by name.
func (m *Monitor) ABTest(ctx context.Context, name string) (ABTest, error) {
	t, err := store.GetJSON[ABTest](ctx, m.store, CollectionABTests, name)
	if errors.Is(err, store.ErrNotFound) {
		return t, fmt.Errorf("%w: %s", ErrABTestNotFound, name)
	}
	return t, err
}

// ABTests lists every registered test ordered by name.
func (m *Monitor) ABTests(ctx context.Context) ([]ABTest, error) {
	return store.ListJSON[ABTest](ctx, m.store, CollectionABTests, "")
}
