package services

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseLocker(t *testing.T, locker KeyLocker, key string) {
	t.Helper()

	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
		total   int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), key)
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			atomic.AddInt32(&total, 1)
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Equal(t, int32(20), total)
}

func TestLocalLocker_Serializes(t *testing.T) {
	l := NewLocalLocker()
	exerciseLocker(t, l, LockKey("u1", "likeability"))
	assert.Empty(t, l.locks, "entries are dropped after use")
}

func TestLocalLocker_HonoursContext(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // idempotent

	unlock2, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock2()
	assert.Empty(t, l.locks)
}

func TestLocalLocker_KeysAreIndependent(t *testing.T) {
	l := NewLocalLocker()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestRedisLocker_Serializes(t *testing.T) {
	addr := os.Getenv("STARMATCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STARMATCH_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewRedisLocker(rdb, 2*time.Second, zerolog.Nop())
	exerciseLocker(t, l, LockKey("test-"+t.Name(), "likeability"))
}
