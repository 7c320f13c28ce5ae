package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starmatch_server/models"
)

func TestDispatch_PartialSuccess(t *testing.T) {
	e := newEngine(t)
	from := e.member()
	to := e.member()
	e.dir.Put(models.Member{UserID: to, Active: true, DeviceTokens: []string{"ok", "stale", "flaky"}})
	e.push.fail["stale"] = &PushError{Kind: PushErrorToken, Code: "UNREGISTERED", Status: 404}
	e.push.fail["flaky"] = errors.New("connection reset")

	res := e.notifier.Dispatch(context.Background(), NotificationRequest{From: from, To: to, Key: models.NotifyBeenLiked})

	assert.True(t, res.Valid)
	assert.Empty(t, res.Reason)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "ok", res.Results[0].Token)
	assert.Equal(t, "msg-ok", res.Results[0].MessageID)

	assert.Len(t, e.sink.Records(""), 2)
	delivery := e.sink.Records(ErrorCategoryDelivery)
	require.Len(t, delivery, 1)
	assert.Equal(t, "stale", delivery[0].Token)
	assert.Equal(t, "UNREGISTERED", delivery[0].Code)
	unknown := e.sink.Records(ErrorCategoryUnknown)
	require.Len(t, unknown, 1)
	assert.Equal(t, "connection reset", unknown[0].Message)
}

func TestDispatch_CredentialFailureLoggedOnce(t *testing.T) {
	e := newEngine(t)
	to := e.member()
	tokens := []string{"t1", "t2", "t3"}
	e.dir.Put(models.Member{UserID: to, Active: true, DeviceTokens: tokens})
	for _, tok := range tokens {
		e.push.fail[tok] = &PushError{Kind: PushErrorCredential, Code: "UNAUTHENTICATED", Status: 401}
	}

	res := e.notifier.Dispatch(context.Background(), NotificationRequest{To: to, Key: models.NotifyBeenMatched})

	assert.False(t, res.Valid)
	assert.Equal(t, ReasonDeliveryFailed, res.Reason)
	assert.Empty(t, res.Results)
	assert.Len(t, e.sink.Records(ErrorCategoryCredentials), 1)
	assert.Len(t, e.sink.Records(""), 1)
}

func TestDispatch_ShortCircuits(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	from := e.member()

	blockedTarget := e.member()
	_, err := e.rel.BlockUser(ctx, blockedTarget, from)
	require.NoError(t, err)

	muted := e.member()
	e.dir.Put(models.Member{UserID: muted, Active: true, DeviceTokens: []string{"x"},
		NotificationPrefs: map[string]bool{models.NotifyBeenLiked: false}})

	noTokens := e.member()
	e.dir.Put(models.Member{UserID: noTokens, Active: true})

	tests := []struct {
		name   string
		to     string
		reason string
	}{
		{"blocked", blockedTarget, ReasonBlocked},
		{"preference disabled", muted, ReasonDisabled},
		{"no tokens", noTokens, ReasonMissingTokens},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.notifier.Dispatch(ctx, NotificationRequest{From: from, To: tt.to, Key: models.NotifyBeenLiked})
			assert.False(t, res.Valid)
			assert.Equal(t, tt.reason, res.Reason)
			assert.NotNil(t, res.Results)
		})
	}
	assert.Empty(t, e.push.Sent())
}

func TestDispatch_TemplateAndOverrides(t *testing.T) {
	e := newEngine(t)
	to := e.member()

	e.notifier.Dispatch(context.Background(), NotificationRequest{To: to, Key: models.NotifyBeenMatched})
	e.notifier.Dispatch(context.Background(), NotificationRequest{To: to, Key: models.NotifyBeenMatched, Title: "Custom", Data: map[string]string{"x": "y"}})

	sent := e.push.Sent()
	require.Len(t, sent, 2)
	tpl := models.DefaultSettings().Notifications[models.NotifyBeenMatched]
	assert.Equal(t, tpl.Title, sent[0].Title)
	assert.Equal(t, tpl.Body, sent[0].Body)
	assert.Equal(t, "Custom", sent[1].Title)
	assert.Equal(t, tpl.Body, sent[1].Body)
	assert.Equal(t, "y", sent[1].Data["x"])
}

func TestDispatchAsync_UsesQueue(t *testing.T) {
	e := newEngine(t)
	to := e.member()

	q := NewWorkQueue(1, 1, zerolog.Nop())
	e.notifier.Queue = q

	first := e.notifier.DispatchAsync(NotificationRequest{To: to, Key: models.NotifyBeenLiked})
	// nothing drains the queue yet, so the second request has nowhere to go
	second := e.notifier.DispatchAsync(NotificationRequest{To: to, Key: models.NotifyBeenLiked})

	res, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonQueueUnavailable, res.Reason)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = first.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	q.Start()
	res, err = first.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.NoError(t, q.Close(context.Background()))

	<-first.Done()
}

func TestSwipeOutcome_AwaitReportsPending(t *testing.T) {
	pending := newPendingDispatch()
	out := &SwipeOutcome{Result: models.SwipeResult{Valid: true}, Notification: pending}

	res := out.Await(context.Background(), 5*time.Millisecond)
	assert.True(t, res.Valid)
	assert.Equal(t, ReasonPending, res.FCM.Reason)

	pending.resolve(models.DispatchResult{Valid: true})
	res = out.Await(context.Background(), time.Second)
	assert.True(t, res.FCM.Valid)
}

// stallingPush blocks every send until the dispatch context ends.
type stallingPush struct{}

func (stallingPush) Send(ctx context.Context, msg models.PushMessage) (models.PushReceipt, error) {
	<-ctx.Done()
	return models.PushReceipt{Token: msg.Token}, ctx.Err()
}

func TestDispatchAsync_InlineHonorsTimeout(t *testing.T) {
	e := newEngine(t)
	to := e.member()
	e.notifier.Push = stallingPush{}
	e.notifier.Timeout = 20 * time.Millisecond

	done := make(chan *PendingDispatch, 1)
	go func() { done <- e.notifier.DispatchAsync(NotificationRequest{To: to, Key: models.NotifyBeenLiked}) }()

	select {
	case pending := <-done:
		res, err := pending.Wait(context.Background())
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, ReasonDeliveryFailed, res.Reason)
		assert.Len(t, e.sink.Records(ErrorCategoryUnknown), 1)
	case <-time.After(2 * time.Second):
		t.Fatal("inline dispatch ignored the timeout")
	}
}
