package locker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Compare-and-delete so a holder whose lease expired cannot release a lock
// someone else acquired in the meantime.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis coordinates locks via SET NX PX with a per-guard token. The lease is
// enforced server-side: a crashed holder's key expires on its own.
type Redis struct {
	rdb   *redis.Client
	retry time.Duration
}

func NewRedis(rdb *redis.Client, retry time.Duration) *Redis {
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	return &Redis{rdb: rdb, retry: retry}
}

func (l *Redis) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Guard, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, lease).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &Guard{Key: key, token: token}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

func (l *Redis) Release(ctx context.Context, g *Guard) error {
	if g == nil {
		return nil
	}
	// 0 replies (already expired or already released) are fine.
	return releaseScript.Run(ctx, l.rdb, []string{g.Key}, g.token).Err()
}
