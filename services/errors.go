package services

import "errors"

var (
	// ErrInactiveActor means the acting user is unknown or deactivated.
	ErrInactiveActor = errors.New("actor is not an active member")
	// ErrInvalidTarget means a malformed or self-referencing user id.
	ErrInvalidTarget = errors.New("invalid target user")
	// ErrUserNotFound is returned by a UserDirectory for unknown ids.
	ErrUserNotFound = errors.New("user not found")
	// ErrVersionConflict is returned by a FlagStore when a conditional write lost a race.
	ErrVersionConflict = errors.New("flag version conflict")
	// ErrStoreInconsistency is surfaced when a version conflict survives the internal retry.
	ErrStoreInconsistency = errors.New("concurrent interaction update, retry later")
)

// IsInactiveActor checks for ErrInactiveActor, including wrapped errors
func IsInactiveActor(err error) bool { return errors.Is(err, ErrInactiveActor) }

// IsInvalidTarget checks for ErrInvalidTarget, including wrapped errors
func IsInvalidTarget(err error) bool { return errors.Is(err, ErrInvalidTarget) }

// IsStoreInconsistency checks for ErrStoreInconsistency, including wrapped errors
func IsStoreInconsistency(err error) bool { return errors.Is(err, ErrStoreInconsistency) }
