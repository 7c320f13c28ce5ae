package services

import (
	"context"
	"sync"
)

// KeyLocker serializes work per key, such as (user, category). Lock blocks
// until the key is held or ctx is done and returns the release function.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LockKey builds the lock key serializing a user's writes in category.
func LockKey(userID, category string) string {
	return "starmatch:lock:" + userID + ":" + category
}

// LocalLocker is an in-process KeyLocker. Entries are reference counted and
// dropped when the last holder or waiter leaves.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{} // buffered(1); a value in the channel means held
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, lk, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, lk, true) })
	}, nil
}

func (l *LocalLocker) release(key string, lk *localLock, held bool) {
	if held {
		<-lk.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

var _ KeyLocker = (*LocalLocker)(nil)
