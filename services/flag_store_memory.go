package services

import (
	"context"
	"sort"
	"sync"

	"starmatch_server/models"
)

// InMemoryFlagStore keeps flags in a map keyed by dyad and category. It is
// safe for concurrent use.
type InMemoryFlagStore struct {
	mu    sync.Mutex
	flags map[models.FlagKey]models.Flag
}

// NewInMemoryFlagStore creates an empty store.
func NewInMemoryFlagStore() *InMemoryFlagStore {
	return &InMemoryFlagStore{flags: make(map[models.FlagKey]models.Flag)}
}

func (s *InMemoryFlagStore) GetFlag(_ context.Context, key models.FlagKey) (*models.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flags[key]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (s *InMemoryFlagStore) PutFlag(_ context.Context, flag models.Flag) (models.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := flag.Key()
	existing, ok := s.flags[key]
	switch {
	case flag.Version == 0 && ok:
		return models.Flag{}, ErrVersionConflict
	case flag.Version != 0 && (!ok || existing.Version != flag.Version):
		return models.Flag{}, ErrVersionConflict
	}

	if ok {
		flag.CreatedAt = existing.CreatedAt
	}
	flag.Version++
	s.flags[key] = flag
	return flag, nil
}

func (s *InMemoryFlagStore) DeleteFlag(_ context.Context, key models.FlagKey) (*models.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flags[key]
	if !ok {
		return nil, nil
	}
	delete(s.flags, key)
	return &f, nil
}

func (s *InMemoryFlagStore) CountFlags(_ context.Context, q FlagQuery) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, f := range s.flags {
		if q.Matches(f) {
			n++
		}
	}
	return n, nil
}

// ListFlags returns matches ordered by modification time, oldest first.
func (s *InMemoryFlagStore) ListFlags(_ context.Context, q FlagQuery) ([]models.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Flag
	for _, f := range s.flags {
		if q.Matches(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModifiedAt.Before(out[j].ModifiedAt) })
	return out, nil
}

// Reset clears all flags.
func (s *InMemoryFlagStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = make(map[models.FlagKey]models.Flag)
}

var _ FlagStore = (*InMemoryFlagStore)(nil)
