package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"starmatch_server/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakePush delivers to every token except those listed in fail.
type fakePush struct {
	mu   sync.Mutex
	fail map[string]error
	sent []models.PushMessage
}

func (f *fakePush) Send(_ context.Context, msg models.PushMessage) (models.PushReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if err := f.fail[msg.Token]; err != nil {
		return models.PushReceipt{Token: msg.Token}, err
	}
	return models.PushReceipt{Token: msg.Token, Delivered: true, MessageID: "msg-" + msg.Token}, nil
}

func (f *fakePush) Sent() []models.PushMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PushMessage(nil), f.sent...)
}

// conflictStore fails the first n writes with ErrVersionConflict.
type conflictStore struct {
	FlagStore
	n int32
}

func (c *conflictStore) PutFlag(ctx context.Context, f models.Flag) (models.Flag, error) {
	if atomic.AddInt32(&c.n, -1) >= 0 {
		return models.Flag{}, ErrVersionConflict
	}
	return c.FlagStore.PutFlag(ctx, f)
}

type engine struct {
	store    *InMemoryFlagStore
	dir      *InMemoryDirectory
	clock    *fakeClock
	push     *fakePush
	sink     *MemorySink
	events   *recordingPublisher
	settings *StaticSettings
	notifier *NotificationService
	swipes   *SwipeService
	rel      *RelationshipService
	ranking  *RankingService
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	e := &engine{
		store:    NewInMemoryFlagStore(),
		dir:      NewInMemoryDirectory(),
		clock:    newFakeClock(),
		push:     &fakePush{fail: map[string]error{}},
		sink:     &MemorySink{},
		events:   &recordingPublisher{},
		settings: &StaticSettings{Value: models.DefaultSettings()},
	}
	locker := NewLocalLocker()

	e.notifier = &NotificationService{
		Store:     e.store,
		Directory: e.dir,
		Settings:  e.settings,
		Push:      e.push,
		Sink:      e.sink,
		Log:       zerolog.Nop(),
		Now:       e.clock.Now,
	}
	e.swipes = &SwipeService{
		Store:     e.store,
		Directory: e.dir,
		Settings:  e.settings,
		Locker:    locker,
		Notifier:  e.notifier,
		Events:    e.events,
		Log:       zerolog.Nop(),
		Now:       e.clock.Now,
	}
	e.rel = &RelationshipService{
		Store:     e.store,
		Directory: e.dir,
		Locker:    locker,
		Notifier:  e.notifier,
		Events:    e.events,
		Log:       zerolog.Nop(),
		Now:       e.clock.Now,
	}
	e.ranking = &RankingService{
		Store:    e.store,
		Settings: e.settings,
		Log:      zerolog.Nop(),
		Now:      e.clock.Now,
	}
	return e
}

// member registers an active member with one device token named after it.
func (e *engine) member(roles ...string) string {
	if len(roles) == 0 {
		roles = []string{"active"}
	}
	id := uuid.NewString()
	e.dir.Put(models.Member{
		UserID:       id,
		Roles:        roles,
		Active:       true,
		DeviceTokens: []string{"token-" + id},
	})
	return id
}

func (e *engine) flag(from, to, category string) *models.Flag {
	f, _ := e.store.GetFlag(context.Background(), models.FlagKey{SourceUser: from, TargetUser: to, Category: category})
	return f
}
