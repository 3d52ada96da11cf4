package locker

import (
	"context"
	"sync"
	"time"
)

// Memory is a single-process coordinator with FIFO handoff per key. Used in
// tests and single-node deployments; lease expiry is not enforced here, only
// the bounded wait.
type Memory struct {
	mu    sync.Mutex
	locks map[string]*memLock
}

type memLock struct {
	held    bool
	waiters []chan struct{}
}

func NewMemory() *Memory {
	return &Memory{locks: make(map[string]*memLock)}
}

func (m *Memory) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Guard, error) {
	m.mu.Lock()
	l := m.locks[key]
	if l == nil {
		l = &memLock{}
		m.locks[key] = l
	}
	if !l.held {
		l.held = true
		m.mu.Unlock()
		return &Guard{Key: key}, nil
	}
	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	m.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ch:
		// ownership handed over by the releaser
		return &Guard{Key: key}, nil
	case <-timer.C:
		m.abandon(key, ch)
		return nil, ErrLockTimeout
	case <-ctx.Done():
		m.abandon(key, ch)
		return nil, ctx.Err()
	}
}

func (m *Memory) Release(_ context.Context, g *Guard) error {
	if g == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.locks[g.Key]
	if l == nil || !l.held {
		return nil
	}
	if len(l.waiters) > 0 {
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(next)
		return nil
	}
	l.held = false
	return nil
}

// abandon removes a timed-out waiter; if the handoff raced the timeout, the
// ownership it just received is passed on.
func (m *Memory) abandon(key string, ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.locks[key]
	if l == nil {
		return
	}
	for i, w := range l.waiters {
		if w == ch {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
	// not in the queue: the releaser already closed our channel
	select {
	case <-ch:
		if len(l.waiters) > 0 {
			next := l.waiters[0]
			l.waiters = l.waiters[1:]
			close(next)
		} else {
			l.held = false
		}
	default:
	}
}
