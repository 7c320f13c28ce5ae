package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starmatch_server/models"
)

func seedRating(t *testing.T, e *engine, from, to string, v int64, age time.Duration) {
	t.Helper()
	at := e.clock.Now().Add(-age)
	_, err := e.store.PutFlag(context.Background(), likeFlag(from, to, v, at))
	require.NoError(t, err)
}

func TestRankByLikeability(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	const d = 24 * time.Hour

	seedRating(t, e, "u1", "star", 2, d)
	seedRating(t, e, "u2", "star", 1, d)
	seedRating(t, e, "u3", "star", -3, d) // passes do not score
	seedRating(t, e, "u1", "solid", 1, d)
	seedRating(t, e, "u2", "solid", 2, d)
	seedRating(t, e, "u1", "dormant", 2, d)
	seedRating(t, e, "u2", "dormant", 2, d)
	seedRating(t, e, "u3", "old", 2, 40*d) // outside the 30 day lookback

	// recent activity of the ranked users themselves
	seedRating(t, e, "star", "u9", 1, 2*d)
	seedRating(t, e, "solid", "u9", 1, 3*d)
	seedRating(t, e, "dormant", "u9", 1, 20*d)

	t.Run("recency gate", func(t *testing.T) {
		got, err := e.ranking.RankByLikeability(ctx, nil, 7, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []models.RankEntry{
			{UserID: "solid", Score: 3},
			{UserID: "star", Score: 3},
		}, got)
	})

	t.Run("no gate", func(t *testing.T) {
		got, err := e.ranking.RankByLikeability(ctx, nil, 0, 0, 0)
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, models.RankEntry{UserID: "dormant", Score: 4}, got[0])
		assert.Equal(t, models.RankEntry{UserID: "u9", Score: 3}, got[3])
	})

	t.Run("filter and paging", func(t *testing.T) {
		got, err := e.ranking.RankByLikeability(ctx, []string{"star", "solid", "dormant"}, 0, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, []models.RankEntry{{UserID: "solid", Score: 3}}, got)

		got, err = e.ranking.RankByLikeability(ctx, nil, 0, 10, 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestRankByActivity(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	const d = 24 * time.Hour

	seedRating(t, e, "fresh", "x", 1, time.Hour) // counts as one day: 14
	seedRating(t, e, "fresh", "y", 0, 3*d)       // ceil(14/3) = 5
	seedRating(t, e, "steady", "x", 1, 2*d)      // 7
	seedRating(t, e, "steady", "y", 1, 7*d)      // 2
	seedRating(t, e, "stale", "x", 1, 8*d)       // outside one week

	got, err := e.ranking.RankByActivity(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.RankEntry{
		{UserID: "fresh", Score: 19},
		{UserID: "steady", Score: 9},
	}, got)

	got, err = e.ranking.RankByActivity(ctx, []string{"steady"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.RankEntry{{UserID: "steady", Score: 9}}, got)

	got, err = e.ranking.RankByActivity(ctx, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
