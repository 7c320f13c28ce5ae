package services

import (
	"context"
	"time"

	"starmatch_server/models"
)

// FlagStore is the keyed store of interaction flags. It holds at most one flag
// per (source, target, category).
type FlagStore interface {
	// GetFlag returns the flag for key, or nil when none exists.
	GetFlag(ctx context.Context, key models.FlagKey) (*models.Flag, error)

	// PutFlag writes flag conditionally on flag.Version: 0 requires that no
	// flag exists for the key, any other value must equal the stored version.
	// A failed condition returns ErrVersionConflict. The stored flag is
	// returned with its version bumped; CreatedAt of an existing flag is kept.
	PutFlag(ctx context.Context, flag models.Flag) (models.Flag, error)

	// DeleteFlag removes the flag for key and returns it, or nil when absent.
	DeleteFlag(ctx context.Context, key models.FlagKey) (*models.Flag, error)

	// CountFlags counts the flags matching q.
	CountFlags(ctx context.Context, q FlagQuery) (int, error)

	// ListFlags returns the flags matching q.
	ListFlags(ctx context.Context, q FlagQuery) ([]models.Flag, error)
}

// FlagQuery filters flags. Empty fields do not filter.
type FlagQuery struct {
	SourceUser    string
	TargetUser    string
	Category      string
	ModifiedSince time.Time

	// MinValue and MaxValue restrict numeric values to a closed band;
	// non-numeric values never match a band.
	MinValue *int64
	MaxValue *int64
}

// Matches reports whether f satisfies q.
func (q FlagQuery) Matches(f models.Flag) bool {
	if q.SourceUser != "" && f.SourceUser != q.SourceUser {
		return false
	}
	if q.TargetUser != "" && f.TargetUser != q.TargetUser {
		return false
	}
	if q.Category != "" && f.Category != q.Category {
		return false
	}
	if !q.ModifiedSince.IsZero() && f.ModifiedAt.Before(q.ModifiedSince) {
		return false
	}
	if q.MinValue == nil && q.MaxValue == nil {
		return true
	}

	var v int64
	switch x := f.Value.(type) {
	case models.IntValue:
		v = int64(x)
	case models.FloatValue:
		v = int64(x)
	default:
		return false
	}
	if q.MinValue != nil && v < *q.MinValue {
		return false
	}
	if q.MaxValue != nil && v > *q.MaxValue {
		return false
	}
	return true
}

// bandFor returns the value band counted against the quota of action.
func bandFor(action models.ActionClass) (min, max *int64) {
	switch action {
	case models.ActionSuperlike:
		return int64Ptr(models.SwipeSuperlike), nil
	case models.ActionLike:
		return int64Ptr(models.SwipeLike), int64Ptr(models.SwipeLike)
	default:
		return nil, int64Ptr(0)
	}
}

func int64Ptr(v int64) *int64 { return &v }

// writeFlag creates next when prev is nil and otherwise updates prev in
// place, carrying over its identity, creation time and version.
func writeFlag(ctx context.Context, store FlagStore, prev *models.Flag, next models.Flag, now time.Time) (models.Flag, error) {
	next.ModifiedAt = now
	if prev == nil {
		next.CreatedAt = now
		next.Version = 0
	} else {
		next.CreatedAt = prev.CreatedAt
		next.Version = prev.Version
	}
	return store.PutFlag(ctx, next)
}
