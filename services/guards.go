package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"starmatch_server/models"
)

// validateDyad checks that both ids are well formed and distinct.
func validateDyad(from, to string) error {
	if _, err := uuid.Parse(from); err != nil {
		return fmt.Errorf("%w: malformed source id %q", ErrInvalidTarget, from)
	}
	if _, err := uuid.Parse(to); err != nil {
		return fmt.Errorf("%w: malformed target id %q", ErrInvalidTarget, to)
	}
	if from == to {
		return fmt.Errorf("%w: source and target are the same user", ErrInvalidTarget)
	}
	return nil
}

// activeMember loads userID and fails with ErrInactiveActor unless it is an
// active member.
func activeMember(ctx context.Context, dir UserDirectory, userID string) (models.Member, error) {
	m, err := dir.GetMember(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return models.Member{}, fmt.Errorf("%w: %s", ErrInactiveActor, userID)
	}
	if err != nil {
		return models.Member{}, fmt.Errorf("failed to load member %s: %w", userID, err)
	}
	if !m.Active {
		return models.Member{}, fmt.Errorf("%w: %s", ErrInactiveActor, userID)
	}
	return m, nil
}

// existingTarget fails with ErrInvalidTarget when userID is unknown.
func existingTarget(ctx context.Context, dir UserDirectory, userID string) (models.Member, error) {
	m, err := dir.GetMember(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return models.Member{}, fmt.Errorf("%w: unknown user %s", ErrInvalidTarget, userID)
	}
	if err != nil {
		return models.Member{}, fmt.Errorf("failed to load member %s: %w", userID, err)
	}
	return m, nil
}

// retryOnConflict runs fn, and runs it once more if it lost an optimistic
// write. A second lost write becomes ErrStoreInconsistency.
func retryOnConflict(fn func() error) error {
	err := fn()
	if !errors.Is(err, ErrVersionConflict) {
		return err
	}
	err = fn()
	if errors.Is(err, ErrVersionConflict) {
		return fmt.Errorf("%w: %v", ErrStoreInconsistency, err)
	}
	return err
}
