package insights

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stored(id, user string, p coaching.Priority, created time.Time) coaching.Insight {
	in := candidate("test", id, p)
	in.ID = id
	in.UserID = user
	in.CreatedAt = created
	in.ExpiresAt = created.Add(7 * 24 * time.Hour)
	return in
}

func TestRepository_ListActive(t *testing.T) {
	repo := NewRepository(store.NewMemory())
	ctx := context.Background()

	older := testNow.Add(-48 * time.Hour)
	require.NoError(t, repo.Save(ctx, []coaching.Insight{
		stored("old-low", "u1", coaching.PriorityLow, older),
		stored("new-low", "u1", coaching.PriorityLow, testNow),
		stored("new-high", "u1", coaching.PriorityHigh, testNow),
		stored("expired", "u1", coaching.PriorityHigh, testNow.Add(-8*24*time.Hour)),
		stored("other-user", "u2", coaching.PriorityHigh, testNow),
	}))

	active, err := repo.ListActive(ctx, "u1", testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"new-high", "new-low", "old-low"}, titles(active))
}

func TestRepository_ExpiryBoundary(t *testing.T) {
	in := stored("x", "u1", coaching.PriorityLow, testNow)

	assert.False(t, in.Expired(in.ExpiresAt.Add(-time.Nanosecond)))
	assert.True(t, in.Expired(in.ExpiresAt))
}

func TestRepository_AttachFeedbackOnce(t *testing.T) {
	repo := NewRepository(store.NewMemory())
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, []coaching.Insight{stored("i1", "u1", coaching.PriorityHigh, testNow)}))

	fb := coaching.InsightFeedback{Helpful: true, Comment: "ate more eggs", Timestamp: testNow}
	got, err := repo.AttachFeedback(ctx, "u1", "i1", fb)
	require.NoError(t, err)
	require.NotNil(t, got.Feedback)
	assert.True(t, got.Feedback.Helpful)

	_, err = repo.AttachFeedback(ctx, "u1", "i1", coaching.InsightFeedback{Helpful: false})
	require.ErrorIs(t, err, ErrFeedbackExists)

	loaded, err := repo.Get(ctx, "u1", "i1")
	require.NoError(t, err)
	assert.Equal(t, "ate more eggs", loaded.Feedback.Comment)

	_, err = repo.AttachFeedback(ctx, "u1", "missing", fb)
	require.ErrorIs(t, err, ErrInsightNotFound)
	_, err = repo.AttachFeedback(ctx, "u2", "i1", fb)
	require.ErrorIs(t, err, ErrInsightNotFound)
}

func TestRepository_Get_NotFound(t *testing.T) {
	repo := NewRepository(store.NewMemory())

	_, err := repo.Get(context.Background(), "u1", "nope")
	require.ErrorIs(t, err, ErrInsightNotFound)
}

func TestRepository_PurgeExpired(t *testing.T) {
	repo := NewRepository(store.NewMemory())
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, []coaching.Insight{
		stored("fresh", "u1", coaching.PriorityLow, testNow),
		stored("stale", "u1", coaching.PriorityLow, testNow.Add(-10*24*time.Hour)),
		stored("stale", "u2", coaching.PriorityLow, testNow.Add(-9*24*time.Hour)),
	}))

	n, err := repo.PurgeExpired(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = repo.Get(ctx, "u1", "stale")
	require.ErrorIs(t, err, ErrInsightNotFound)
	_, err = repo.Get(ctx, "u1", "fresh")
	require.NoError(t, err)
}
