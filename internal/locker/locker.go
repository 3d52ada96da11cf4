package locker

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrLockTimeout is returned when a lock cannot be acquired within the wait
// timeout. Retryable; the coordinator itself never retries.
var ErrLockTimeout = errors.New("lock acquire timeout")

// Guard represents one held lock. Release is idempotent and safe to call
// after the lease already expired.
type Guard struct {
	Key   string
	token string
}

type Coordinator interface {
	// Acquire blocks up to wait for the named lock, holding it for at most
	// lease once granted.
	Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Guard, error)
	Release(ctx context.Context, g *Guard) error
}

// WithKeys runs fn while holding every key. Keys are acquired in ascending
// order so concurrent multi-key callers cannot deadlock, and released
// exactly once regardless of outcome.
func WithKeys(ctx context.Context, c Coordinator, keys []string, wait, lease time.Duration, fn func(ctx context.Context) error) error {
	sorted := dedupeSorted(keys)

	guards := make([]*Guard, 0, len(sorted))
	defer func() {
		for i := len(guards) - 1; i >= 0; i-- {
			_ = c.Release(ctx, guards[i])
		}
	}()

	for _, k := range sorted {
		g, err := c.Acquire(ctx, k, wait, lease)
		if err != nil {
			return err
		}
		guards = append(guards, g)
	}
	return fn(ctx)
}

func dedupeSorted(keys []string) []string {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)
	out := sorted[:0]
	for i, k := range sorted {
		if i == 0 || sorted[i-1] != k {
			out = append(out, k)
		}
	}
	return out
}
