package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the lease only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker is a KeyLocker backed by a Redis lease (SET NX PX), so that
// several server instances serialize on the same keys. A lease that outlives
// its holder expires after TTL.
type RedisLocker struct {
	Rdb      redis.UniversalClient
	TTL      time.Duration
	SpinWait time.Duration
	Log      zerolog.Logger
}

func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{Rdb: rdb, TTL: ttl, SpinWait: 25 * time.Millisecond, Log: log}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := l.Rdb.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lease %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.SpinWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		// the caller's ctx may already be cancelled; the lease must still go
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.Rdb, []string{key}, token).Err(); err != nil {
			l.Log.Warn().Err(err).Str("key", key).Msg("failed to release lease, waiting for expiry")
		}
	}, nil
}

var _ KeyLocker = (*RedisLocker)(nil)
