package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"starmatch_server/models"
)

// SwipeRequest is one rating of To by From.
type SwipeRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Value   int64  `json:"value"`
	Context string `json:"context,omitempty"`
}

// SwipeOutcome is the committed swipe plus the notification it triggered,
// if any. Result.FCM is filled by Await.
type SwipeOutcome struct {
	Result       models.SwipeResult
	Notification *PendingDispatch
}

// Await waits up to timeout for the notification and folds its result into
// the swipe result. A notification still running is reported as pending and
// keeps going in the background.
func (o *SwipeOutcome) Await(ctx context.Context, timeout time.Duration) models.SwipeResult {
	res := o.Result
	if o.Notification == nil {
		return res
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	fcm, err := o.Notification.Wait(ctx)
	if err != nil {
		fcm = models.DispatchResult{Reason: ReasonPending, Results: []models.PushReceipt{}}
	}
	res.FCM = fcm
	return res
}

// SwipeService records ratings, enforces quotas and detects matches.
type SwipeService struct {
	Store     FlagStore
	Directory UserDirectory
	Settings  SettingsProvider
	Locker    KeyLocker
	Notifier  Notifier
	Events    EventPublisher
	Quotas    QuotaService
	Log       zerolog.Logger
	Now       func() time.Time
}

func (s *SwipeService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// swipeCommit is what the locked section decided.
type swipeCommit struct {
	result  models.SwipeResult
	changed bool // the stored value changed
}

// RecordSwipe rates req.To on behalf of req.From. The flag write, the quota
// check and the window advance run under the actor's likeability lock.
func (s *SwipeService) RecordSwipe(ctx context.Context, req SwipeRequest) (*SwipeOutcome, error) {
	if err := validateDyad(req.From, req.To); err != nil {
		return nil, err
	}
	if _, err := activeMember(ctx, s.Directory, req.From); err != nil {
		return nil, err
	}
	if _, err := existingTarget(ctx, s.Directory, req.To); err != nil {
		return nil, err
	}
	settings, err := s.Settings.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	value := req.Value
	action := models.ClassifySwipe(value)
	if action == models.ActionSuperlike {
		value = models.SwipeSuperlike
	}

	unlock, err := s.Locker.Lock(ctx, LockKey(req.From, models.CategoryLikeability))
	if err != nil {
		return nil, fmt.Errorf("lock swipe: %w", err)
	}

	var commit swipeCommit
	err = retryOnConflict(func() error {
		// the actor may have been deactivated while we waited for the lock
		actor, err := activeMember(ctx, s.Directory, req.From)
		if err != nil {
			return err
		}
		commit, err = s.commit(ctx, actor, settings, req, value, action)
		return err
	})
	unlock()
	if err != nil {
		return nil, err
	}

	outcome := &SwipeOutcome{Result: commit.result}
	outcome.Result.FCM = models.DispatchResult{Results: []models.PushReceipt{}}
	if value <= 0 {
		return outcome, nil
	}

	recip, err := s.Store.GetFlag(ctx, models.FlagKey{SourceUser: req.To, TargetUser: req.From, Category: models.CategoryLikeability})
	if err != nil {
		// the swipe is committed; a failed lookup only loses the match check
		s.Log.Error().Err(err).Str("from", req.From).Str("to", req.To).Msg("reciprocal lookup failed")
		return outcome, nil
	}
	outcome.Result.RecipSwipe = recip
	// a rejected swipe only counts toward a match if an earlier like stands
	forward := outcome.Result.Valid
	if pv, ok := flagInt(outcome.Result.PrevSwipe); ok && pv > 0 {
		forward = true
	}
	if rv, ok := flagInt(recip); ok && rv > 0 && forward {
		outcome.Result.Mutual = true
	}

	if !outcome.Result.Valid || !commit.changed {
		return outcome, nil
	}

	key, kind := models.NotifyBeenLiked, models.EventLike
	switch {
	case outcome.Result.Mutual:
		key, kind = models.NotifyBeenMatched, models.EventMatch
	case action == models.ActionSuperlike:
		key = models.NotifyBeenSuperliked
	}

	s.publish(ctx, models.InteractionEvent{
		Kind:   kind,
		From:   req.From,
		To:     req.To,
		Value:  value,
		Mutual: outcome.Result.Mutual,
		At:     s.now(),
	})
	if s.Notifier != nil {
		outcome.Notification = s.Notifier.DispatchAsync(NotificationRequest{
			From: req.From,
			To:   req.To,
			Key:  key,
			Data: map[string]string{"value": fmt.Sprint(value)},
		})
	}
	return outcome, nil
}

// commit runs the read-count-write section for one attempt.
func (s *SwipeService) commit(ctx context.Context, actor models.Member, settings models.Settings, req SwipeRequest, value int64, action models.ActionClass) (swipeCommit, error) {
	now := s.now()
	key := models.FlagKey{SourceUser: req.From, TargetUser: req.To, Category: models.CategoryLikeability}

	prev, err := s.Store.GetFlag(ctx, key)
	if err != nil {
		return swipeCommit{}, err
	}
	if action == models.ActionPass && !strings.Contains(req.Context, "like") {
		value = decayPass(value, prev, settings.MinPassValue)
	}

	perms := NewPermissionService(settings.Catalog).Resolve(actor.Roles)
	windowStart := effectiveWindowStart(actor, action, settings.ResetInterval(), now)
	quota := s.Quotas.Evaluate(perms, action, windowStart, now)

	min, max := bandFor(action)
	count, err := s.Store.CountFlags(ctx, FlagQuery{
		SourceUser:    req.From,
		Category:      models.CategoryLikeability,
		ModifiedSince: windowStart,
		MinValue:      min,
		MaxValue:      max,
	})
	if err != nil {
		return swipeCommit{}, err
	}

	// a re-swipe of a target already counted in this window takes no new slot
	prevValue, prevNumeric := flagInt(prev)
	alreadyCounted := prevNumeric && models.ClassifySwipe(prevValue) == action && !prev.ModifiedAt.Before(windowStart)

	res := models.SwipeResult{Value: value, PrevSwipe: prev}
	out := swipeCommit{}

	if quota.Allows(count) || (alreadyCounted && !quota.Closed) {
		next := models.Flag{
			SourceUser: req.From,
			TargetUser: req.To,
			Category:   models.CategoryLikeability,
			Value:      models.IntValue(value),
			IsRating:   true,
			Active:     true,
		}
		if _, err := writeFlag(ctx, s.Store, prev, next, now); err != nil {
			return swipeCommit{}, err
		}
		res.Valid = true
		out.changed = !prevNumeric || prevValue != value
		if !alreadyCounted {
			count++
		}
	}
	res.Remaining = quota.Remaining(count)

	if value > 0 && res.Remaining == 0 && !settings.IsPaid(actor.Roles) {
		var start time.Time
		switch {
		case quota.Closed:
			start = quota.WindowStart
		case !quota.Unlimited:
			start, err = s.Directory.AdvanceWindowStart(ctx, req.From, action, settings.ResetInterval(), now)
			if err != nil {
				return swipeCommit{}, fmt.Errorf("advance %s window: %w", action, err)
			}
			s.Log.Info().Str("userId", req.From).Str("action", string(action)).Time("nextStart", start).Msg("quota exhausted")
		}
		if !start.IsZero() {
			res.NextStartTs = start.UnixMilli()
			res.SecondsToWait = secondsUntil(start, now)
		}
	}

	out.result = res
	return out, nil
}

// RecordViewed upserts the viewed flag from -> to.
func (s *SwipeService) RecordViewed(ctx context.Context, from, to string, viewed bool) (models.ViewResult, error) {
	if err := validateDyad(from, to); err != nil {
		return models.ViewResult{}, err
	}
	if _, err := activeMember(ctx, s.Directory, from); err != nil {
		return models.ViewResult{}, err
	}
	if _, err := existingTarget(ctx, s.Directory, to); err != nil {
		return models.ViewResult{}, err
	}

	unlock, err := s.Locker.Lock(ctx, LockKey(from, models.CategoryViewed))
	if err != nil {
		return models.ViewResult{}, fmt.Errorf("lock view: %w", err)
	}
	defer unlock()

	key := models.FlagKey{SourceUser: from, TargetUser: to, Category: models.CategoryViewed}
	status := ""
	err = retryOnConflict(func() error {
		prev, err := s.Store.GetFlag(ctx, key)
		if err != nil {
			return err
		}
		if prev != nil && models.EqualValues(prev.Value, models.BoolValue(viewed)) {
			status = models.ViewUnchanged
			return nil
		}
		next := models.Flag{
			SourceUser: from,
			TargetUser: to,
			Category:   models.CategoryViewed,
			Value:      models.BoolValue(viewed),
			Active:     true,
		}
		if _, err := writeFlag(ctx, s.Store, prev, next, s.now()); err != nil {
			return err
		}
		status = models.ViewCreated
		if prev != nil {
			status = models.ViewUpdated
		}
		return nil
	})
	if err != nil {
		return models.ViewResult{}, err
	}
	return models.ViewResult{Valid: true, Status: status}, nil
}

func (s *SwipeService) publish(ctx context.Context, evt models.InteractionEvent) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, evt); err != nil {
		s.Log.Warn().Err(err).Str("kind", evt.Kind).Msg("failed to publish interaction event")
	}
}

// decayPass turns a pass into a stronger dislike each time it is repeated,
// saturating at floor. Without an earlier pass the value starts at floor.
func decayPass(value int64, prev *models.Flag, floor int64) int64 {
	pv, ok := flagInt(prev)
	if value <= floor || !ok || pv > 0 {
		return floor
	}
	if pv-1 < floor {
		return floor
	}
	return pv - 1
}

// effectiveWindowStart is the start of the window swipes are counted in. For
// likes and superlikes it is the stored start, but never older than one
// reset interval; passes always use the rolling interval.
func effectiveWindowStart(actor models.Member, action models.ActionClass, interval time.Duration, now time.Time) time.Time {
	rolling := now.Add(-interval)
	if action == models.ActionPass {
		return rolling
	}
	stored := actor.WindowStart(action)
	if stored.After(rolling) {
		return stored
	}
	return rolling
}

func secondsUntil(t, now time.Time) int64 {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

func flagInt(f *models.Flag) (int64, bool) {
	if f == nil {
		return 0, false
	}
	return f.IntValue()
}
