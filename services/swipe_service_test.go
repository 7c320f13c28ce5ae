package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starmatch_server/models"
)

func like(t *testing.T, e *engine, from, to string) models.SwipeResult {
	t.Helper()
	out, err := e.swipes.RecordSwipe(context.Background(), SwipeRequest{From: from, To: to, Value: 1})
	require.NoError(t, err)
	return out.Await(context.Background(), time.Second)
}

func TestRecordSwipe_LikeQuotaExhaustsWindow(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	actor := e.member("active")
	start := e.clock.Now()

	for i := 0; i < 25; i++ {
		target := e.member()
		res := like(t, e, actor, target)
		require.True(t, res.Valid, "like %d", i+1)
		assert.Equal(t, 24-i, res.Remaining, "like %d", i+1)
		if i < 24 {
			assert.Zero(t, res.NextStartTs)
		}
	}

	m, err := e.dir.GetMember(ctx, actor)
	require.NoError(t, err)
	wantStart := start.Add(24 * time.Hour)
	assert.Equal(t, wantStart.UnixMilli(), m.LikeStartTs)

	e.clock.Advance(time.Minute)
	late := e.member()
	res := like(t, e, actor, late)
	assert.False(t, res.Valid)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, wantStart.UnixMilli(), res.NextStartTs, "a closed window reports its existing start")
	assert.Equal(t, int64((24*time.Hour - time.Minute).Seconds()), res.SecondsToWait)
	assert.Nil(t, e.flag(actor, late, models.CategoryLikeability), "rejected swipe writes nothing")

	m, err = e.dir.GetMember(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, wantStart.UnixMilli(), m.LikeStartTs, "window is not advanced twice")

	// once the window opens the quota is fresh
	e.clock.Advance(24 * time.Hour)
	res = like(t, e, actor, late)
	assert.True(t, res.Valid)
	assert.Equal(t, 24, res.Remaining)
}

func TestRecordSwipe_ConcurrentLikesNeverExceedQuota(t *testing.T) {
	e := newEngine(t)
	actor := e.member("active")

	targets := make([]string, 40)
	for i := range targets {
		targets[i] = e.member()
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		valid int
	)
	for _, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.swipes.RecordSwipe(context.Background(), SwipeRequest{From: actor, To: target, Value: 1})
			if !assert.NoError(t, err) {
				return
			}
			if out.Result.Valid {
				mu.Lock()
				valid++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, valid)
	n, err := e.store.CountFlags(context.Background(), FlagQuery{SourceUser: actor, Category: models.CategoryLikeability})
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}

func TestRecordSwipe_MutualDetectionIsSymmetric(t *testing.T) {
	for _, order := range []string{"a first", "b first"} {
		t.Run(order, func(t *testing.T) {
			e := newEngine(t)
			a, b := e.member(), e.member()
			first, second := a, b
			if order == "b first" {
				first, second = b, a
			}

			res := like(t, e, first, second)
			assert.True(t, res.Valid)
			assert.False(t, res.Mutual)
			assert.Nil(t, res.RecipSwipe)
			assert.True(t, res.FCM.Valid)

			res = like(t, e, second, first)
			assert.True(t, res.Valid)
			assert.True(t, res.Mutual)
			require.NotNil(t, res.RecipSwipe)
			assert.Equal(t, first, res.RecipSwipe.SourceUser)

			sent := e.push.Sent()
			require.Len(t, sent, 2)
			assert.Equal(t, models.NotifyBeenLiked, sent[0].Data["key"])
			assert.Equal(t, models.NotifyBeenMatched, sent[1].Data["key"])
			assert.Equal(t, "token-"+first, sent[1].Token)

			events := e.events.Events()
			require.Len(t, events, 2)
			assert.Equal(t, models.EventMatch, events[1].Kind)
			assert.True(t, events[1].Mutual)
		})
	}
}

func TestRecordSwipe_PassDecay(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	actor, target := e.member(), e.member()

	pass := func(to string, value int64, swipeContext string) int64 {
		t.Helper()
		out, err := e.swipes.RecordSwipe(ctx, SwipeRequest{From: actor, To: to, Value: value, Context: swipeContext})
		require.NoError(t, err)
		assert.True(t, out.Result.Valid)
		assert.Nil(t, out.Notification, "passes never notify")
		v, ok := e.flag(actor, to, models.CategoryLikeability).IntValue()
		require.True(t, ok)
		return v
	}

	// a first pass starts at the floor and stays there
	assert.Equal(t, int64(-3), pass(target, 0, ""))
	assert.Equal(t, int64(-3), pass(target, 0, ""))

	// a softer pass stored from a like context decays one step per repeat
	soft := e.member()
	require.Equal(t, int64(-1), pass(soft, -1, "like_stack"))
	var stored []int64
	for i := 0; i < 3; i++ {
		stored = append(stored, pass(soft, 0, ""))
	}
	assert.Equal(t, []int64{-2, -3, -3}, stored)

	t.Run("pass after a like starts at the floor", func(t *testing.T) {
		liked := e.member()
		like(t, e, actor, liked)
		assert.Equal(t, int64(-3), pass(liked, 0, ""))
	})

	t.Run("below floor clamps", func(t *testing.T) {
		other := e.member()
		out, err := e.swipes.RecordSwipe(ctx, SwipeRequest{From: actor, To: other, Value: -10})
		require.NoError(t, err)
		assert.Equal(t, int64(-3), out.Result.Value)
	})

	t.Run("like context skips decay", func(t *testing.T) {
		out, err := e.swipes.RecordSwipe(ctx, SwipeRequest{From: actor, To: target, Value: 0, Context: "like_stack"})
		require.NoError(t, err)
		assert.Equal(t, int64(0), out.Result.Value)
	})
}

func TestRecordSwipe_RejectedSwipeIsNotMutual(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	actor, first, admirer := e.member(), e.member(), e.member()

	// the single superlike of the window goes to first
	out, err := e.swipes.RecordSwipe(ctx, SwipeRequest{From: actor, To: first, Value: 2})
	require.NoError(t, err)
	require.True(t, out.Result.Valid)

	require.True(t, like(t, e, admirer, actor).Valid)

	out, err = e.swipes.RecordSwipe(ctx, SwipeRequest{From: actor, To: admirer, Value: 2})
	require.NoError(t, err)
	assert.False(t, out.Result.Valid)
	require.NotNil(t, out.Result.RecipSwipe)
	assert.False(t, out.Result.Mutual, "no forward like was stored")
	assert.Nil(t, e.flag(actor, admirer, models.CategoryLikeability))

	// an earlier like still stands when a later superlike is rejected
	require.True(t, like(t, e, actor, admirer).Valid)
	out, err = e.swipes.RecordSwipe(ctx, SwipeRequest{From: actor, To: admirer, Value: 2})
	require.NoError(t, err)
	assert.False(t, out.Result.Valid)
	assert.True(t, out.Result.Mutual)
}

func TestRecordSwipe_SuperlikeNormalizedAndCapped(t *testing.T) {
	e := newEngine(t)
	actor := e.member("active")
	first, second := e.member(), e.member()

	out, err := e.swipes.RecordSwipe(context.Background(), SwipeRequest{From: actor, To: first, Value: 7})
	require.NoError(t, err)
	res := out.Await(context.Background(), time.Second)
	assert.True(t, res.Valid)
	assert.Equal(t, models.SwipeSuperlike, res.Value)
	assert.Equal(t, 0, res.Remaining)
	assert.NotZero(t, res.NextStartTs)
	assert.Equal(t, models.NotifyBeenSuperliked, e.push.Sent()[0].Data["key"])

	out, err = e.swipes.RecordSwipe(context.Background(), SwipeRequest{From: actor, To: second, Value: 2})
	require.NoError(t, err)
	assert.False(t, out.Result.Valid)

	// re-rating the same target does not reopen a closed window
	out, err = e.swipes.RecordSwipe(context.Background(), SwipeRequest{From: actor, To: first, Value: 2})
	require.NoError(t, err)
	assert.False(t, out.Result.Valid)
	assert.Equal(t, 0, out.Result.Remaining)

	// likes keep their own window
	assert.True(t, like(t, e, actor, second).Valid)
}

func TestRecordSwipe_PaidRolesKeepTheirWindow(t *testing.T) {
	e := newEngine(t)
	role := e.settings.Value.Catalog.Roles["extended"]
	role.Limits = map[string]int{"extended_swipe_like": 2, "extended_swipe_superstar": 1}
	e.settings.Value.Catalog.Roles["extended"] = role
	e.settings.Value.Catalog.Roles["active"] = models.RoleDefinition{Key: "active", AppAccess: true}

	actor := e.member("extended")
	assert.True(t, like(t, e, actor, e.member()).Valid)
	res := like(t, e, actor, e.member())
	assert.True(t, res.Valid)
	assert.Equal(t, 0, res.Remaining)
	assert.Zero(t, res.NextStartTs, "paid roles are not pushed into a future window")

	res = like(t, e, actor, e.member())
	assert.False(t, res.Valid)
	m, err := e.dir.GetMember(context.Background(), actor)
	require.NoError(t, err)
	assert.Zero(t, m.LikeStartTs)
}

func TestRecordSwipe_RepeatedLikeDoesNotRenotify(t *testing.T) {
	e := newEngine(t)
	a, b := e.member(), e.member()

	first := like(t, e, a, b)
	second := like(t, e, a, b)
	assert.True(t, second.Valid)
	assert.Equal(t, first.Remaining, second.Remaining, "a re-swipe takes no new slot")
	require.NotNil(t, second.PrevSwipe)
	assert.Len(t, e.push.Sent(), 1)
}

func TestRecordSwipe_Guards(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	actor := e.member()
	inactive := e.member()
	m, _ := e.dir.GetMember(ctx, inactive)
	m.Active = false
	e.dir.Put(m)

	tests := []struct {
		name string
		req  SwipeRequest
		want error
	}{
		{"self swipe", SwipeRequest{From: actor, To: actor, Value: 1}, ErrInvalidTarget},
		{"malformed target", SwipeRequest{From: actor, To: "not-a-uuid", Value: 1}, ErrInvalidTarget},
		{"unknown target", SwipeRequest{From: actor, To: uuid.NewString(), Value: 1}, ErrInvalidTarget},
		{"inactive actor", SwipeRequest{From: inactive, To: actor, Value: 1}, ErrInactiveActor},
		{"unknown actor", SwipeRequest{From: uuid.NewString(), To: actor, Value: 1}, ErrInactiveActor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.swipes.RecordSwipe(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, out)
		})
	}

	flags, err := e.store.ListFlags(ctx, FlagQuery{})
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestRecordSwipe_RetriesVersionConflictOnce(t *testing.T) {
	t.Run("single conflict is absorbed", func(t *testing.T) {
		e := newEngine(t)
		e.swipes.Store = &conflictStore{FlagStore: e.store, n: 1}
		a, b := e.member(), e.member()

		out, err := e.swipes.RecordSwipe(context.Background(), SwipeRequest{From: a, To: b, Value: 1})
		require.NoError(t, err)
		assert.True(t, out.Result.Valid)
		assert.NotNil(t, e.flag(a, b, models.CategoryLikeability))
	})

	t.Run("repeated conflict surfaces", func(t *testing.T) {
		e := newEngine(t)
		e.swipes.Store = &conflictStore{FlagStore: e.store, n: 2}
		a, b := e.member(), e.member()

		_, err := e.swipes.RecordSwipe(context.Background(), SwipeRequest{From: a, To: b, Value: 1})
		assert.True(t, IsStoreInconsistency(err))
		assert.Nil(t, e.flag(a, b, models.CategoryLikeability))
	})
}

func TestRecordSwipe_BlockedDyadSkipsNotification(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	a, b := e.member(), e.member()

	_, err := e.rel.BlockUser(ctx, b, a)
	require.NoError(t, err)

	res := like(t, e, a, b)
	assert.True(t, res.Valid, "the rating itself is still recorded")
	assert.False(t, res.FCM.Valid)
	assert.Equal(t, ReasonBlocked, res.FCM.Reason)
	assert.Empty(t, e.push.Sent())
}

func TestRecordViewed(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	a, b := e.member(), e.member()

	steps := []struct {
		viewed bool
		want   string
	}{
		{true, models.ViewCreated},
		{true, models.ViewUnchanged},
		{false, models.ViewUpdated},
	}
	for _, step := range steps {
		res, err := e.swipes.RecordViewed(ctx, a, b, step.viewed)
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, step.want, res.Status)
	}

	f := e.flag(a, b, models.CategoryViewed)
	require.NotNil(t, f)
	assert.Equal(t, models.BoolValue(false), f.Value)

	_, err := e.swipes.RecordViewed(ctx, a, a, true)
	assert.True(t, IsInvalidTarget(err))
}

func TestDecayPass(t *testing.T) {
	prev := func(v int64) *models.Flag { return &models.Flag{Value: models.IntValue(v)} }
	tests := []struct {
		name  string
		value int64
		prev  *models.Flag
		want  int64
	}{
		{"first pass clamps to floor", -1, nil, -3},
		{"first neutral pass clamps to floor", 0, nil, -3},
		{"repeat decrements previous", 0, prev(-1), -2},
		{"neutral previous decrements", 0, prev(0), -1},
		{"saturates at floor", 0, prev(-3), -3},
		{"below floor clamps", -9, prev(-1), -3},
		{"previous like is not a pass", 0, prev(1), -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decayPass(tt.value, tt.prev, -3))
		})
	}
}
