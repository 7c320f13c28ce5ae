package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"starmatch_server/models"
)

// Notifier schedules push notifications.
type Notifier interface {
	DispatchAsync(req NotificationRequest) *PendingDispatch
}

// RelationshipService manages friend requests and blocks. Both live in the
// flag store as their own categories.
type RelationshipService struct {
	Store     FlagStore
	Directory UserDirectory
	Locker    KeyLocker
	Notifier  Notifier
	Events    EventPublisher
	Log       zerolog.Logger
	Now       func() time.Time
}

func (s *RelationshipService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// IsBlockedBetween reports whether either user has blocked the other.
func IsBlockedBetween(ctx context.Context, store FlagStore, a, b string) (bool, error) {
	for _, key := range []models.FlagKey{
		{SourceUser: a, TargetUser: b, Category: models.CategoryBlock},
		{SourceUser: b, TargetUser: a, Category: models.CategoryBlock},
	} {
		f, err := store.GetFlag(ctx, key)
		if err != nil {
			return false, err
		}
		if f != nil && f.Active {
			return true, nil
		}
	}
	return false, nil
}

// IsBlocked reports whether either user has blocked the other.
func (s *RelationshipService) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	return IsBlockedBetween(ctx, s.Store, a, b)
}

// guard validates the dyad, checks the actor and takes the actor's lock for
// category.
func (s *RelationshipService) guard(ctx context.Context, from, to, category string) (func(), error) {
	if err := validateDyad(from, to); err != nil {
		return nil, err
	}
	if _, err := activeMember(ctx, s.Directory, from); err != nil {
		return nil, err
	}
	if _, err := existingTarget(ctx, s.Directory, to); err != nil {
		return nil, err
	}
	return s.Locker.Lock(ctx, LockKey(from, category))
}

// SendFriendRequest creates the request from -> to and returns the number of
// records written. Existing requests and blocked dyads write nothing.
func (s *RelationshipService) SendFriendRequest(ctx context.Context, from, to string) (int, error) {
	unlock, err := s.guard(ctx, from, to, models.CategoryFriendRequest)
	if err != nil {
		return 0, err
	}
	defer unlock()

	blocked, err := s.IsBlocked(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if blocked {
		s.Log.Debug().Str("from", from).Str("to", to).Msg("friend request on blocked dyad ignored")
		return 0, nil
	}

	count := 0
	key := models.FlagKey{SourceUser: from, TargetUser: to, Category: models.CategoryFriendRequest}
	err = retryOnConflict(func() error {
		count = 0
		prev, err := s.Store.GetFlag(ctx, key)
		if err != nil || prev != nil {
			return err
		}
		_, err = writeFlag(ctx, s.Store, nil, friendFlag(from, to, models.FriendRequested), s.now())
		if err == nil {
			count = 1
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("send friend request: %w", err)
	}

	if count > 0 && s.Notifier != nil {
		s.Notifier.DispatchAsync(NotificationRequest{From: from, To: to, Key: models.NotifyFriendRequest})
	}
	return count, nil
}

// AcceptFriendRequest records from's acceptance of the pending request
// to -> from as a separate flag from -> to. Without a pending request
// nothing is written.
func (s *RelationshipService) AcceptFriendRequest(ctx context.Context, from, to string) (int, error) {
	unlock, err := s.guard(ctx, from, to, models.CategoryFriendRequest)
	if err != nil {
		return 0, err
	}
	defer unlock()

	request, err := s.Store.GetFlag(ctx, models.FlagKey{SourceUser: to, TargetUser: from, Category: models.CategoryFriendRequest})
	if err != nil {
		return 0, err
	}
	if request == nil {
		return 0, nil
	}
	if v, _ := request.IntValue(); v != models.FriendRequested {
		return 0, nil
	}

	count := 0
	key := models.FlagKey{SourceUser: from, TargetUser: to, Category: models.CategoryFriendRequest}
	err = retryOnConflict(func() error {
		count = 0
		prev, err := s.Store.GetFlag(ctx, key)
		if err != nil {
			return err
		}
		if prev != nil {
			if v, _ := prev.IntValue(); v == models.FriendAccepted {
				return nil
			}
		}
		_, err = writeFlag(ctx, s.Store, prev, friendFlag(from, to, models.FriendAccepted), s.now())
		if err == nil {
			count = 1
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("accept friend request: %w", err)
	}

	if count > 0 {
		if s.Notifier != nil {
			s.Notifier.DispatchAsync(NotificationRequest{From: from, To: to, Key: models.NotifyFriendAccepted})
		}
		s.publish(ctx, models.InteractionEvent{
			Kind: models.EventFriendAccepted, From: from, To: to,
			Value: models.FriendAccepted, Mutual: true, At: s.now(),
		})
	}
	return count, nil
}

// Unfriend removes from's friend record toward to and, with mutual, the
// reverse record too. It returns the number of records removed.
func (s *RelationshipService) Unfriend(ctx context.Context, from, to string, mutual bool) (int, error) {
	unlock, err := s.guard(ctx, from, to, models.CategoryFriendRequest)
	if err != nil {
		return 0, err
	}
	defer unlock()

	res, err := s.deletePair(ctx, models.CategoryFriendRequest, from, to, mutual)
	if err != nil {
		return 0, err
	}
	count := 0
	if res.Result != nil {
		count++
	}
	if res.Result2 != nil {
		count++
	}
	return count, nil
}

// BlockUser marks the dyad blocked from from's side.
func (s *RelationshipService) BlockUser(ctx context.Context, from, to string) (models.BlockResult, error) {
	unlock, err := s.guard(ctx, from, to, models.CategoryBlock)
	if err != nil {
		return models.BlockResult{}, err
	}
	defer unlock()

	key := models.FlagKey{SourceUser: from, TargetUser: to, Category: models.CategoryBlock}
	err = retryOnConflict(func() error {
		prev, err := s.Store.GetFlag(ctx, key)
		if err != nil {
			return err
		}
		if prev != nil && prev.Active {
			return nil
		}
		next := models.Flag{
			SourceUser: from,
			TargetUser: to,
			Category:   models.CategoryBlock,
			Value:      models.BoolValue(true),
			Active:     true,
		}
		_, err = writeFlag(ctx, s.Store, prev, next, s.now())
		return err
	})
	if err != nil {
		return models.BlockResult{}, fmt.Errorf("block user: %w", err)
	}
	s.Log.Info().Str("from", from).Str("to", to).Msg("user blocked")
	return models.BlockResult{Valid: true}, nil
}

// UnblockUser removes from's block on to. Valid reports whether a block was
// removed.
func (s *RelationshipService) UnblockUser(ctx context.Context, from, to string) (models.BlockResult, error) {
	unlock, err := s.guard(ctx, from, to, models.CategoryBlock)
	if err != nil {
		return models.BlockResult{}, err
	}
	defer unlock()

	removed, err := s.Store.DeleteFlag(ctx, models.FlagKey{SourceUser: from, TargetUser: to, Category: models.CategoryBlock})
	if err != nil {
		return models.BlockResult{}, fmt.Errorf("unblock user: %w", err)
	}
	return models.BlockResult{Valid: removed != nil}, nil
}

// DeleteFlag removes the u1 -> u2 flag of category and, with mutual, the
// u2 -> u1 flag. Absent flags come back nil.
func (s *RelationshipService) DeleteFlag(ctx context.Context, category, u1, u2 string, mutual bool) (models.DeleteFlagResult, error) {
	if category == "" {
		return models.DeleteFlagResult{}, fmt.Errorf("%w: empty category", ErrInvalidTarget)
	}
	if err := validateDyad(u1, u2); err != nil {
		return models.DeleteFlagResult{}, err
	}
	unlock, err := s.Locker.Lock(ctx, LockKey(u1, category))
	if err != nil {
		return models.DeleteFlagResult{}, err
	}
	defer unlock()

	return s.deletePair(ctx, category, u1, u2, mutual)
}

func (s *RelationshipService) deletePair(ctx context.Context, category, u1, u2 string, mutual bool) (models.DeleteFlagResult, error) {
	var res models.DeleteFlagResult
	key := models.FlagKey{SourceUser: u1, TargetUser: u2, Category: category}

	removed, err := s.Store.DeleteFlag(ctx, key)
	if err != nil {
		return res, fmt.Errorf("delete flag: %w", err)
	}
	res.Result = removed

	if mutual {
		removed, err = s.Store.DeleteFlag(ctx, key.Mirror())
		if err != nil {
			return res, fmt.Errorf("delete mirrored flag: %w", err)
		}
		res.Result2 = removed
	}
	return res, nil
}

func (s *RelationshipService) publish(ctx context.Context, evt models.InteractionEvent) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, evt); err != nil {
		s.Log.Warn().Err(err).Str("kind", evt.Kind).Msg("failed to publish interaction event")
	}
}

func friendFlag(from, to string, state int64) models.Flag {
	return models.Flag{
		SourceUser: from,
		TargetUser: to,
		Category:   models.CategoryFriendRequest,
		Value:      models.IntValue(state),
		Active:     true,
	}
}
