// internal/common/lock/lock.go
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotHeld = errors.New("lock not held")

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out named mutual-exclusion locks. ttl bounds how long a lock
// survives a crashed holder; implementations without expiry ignore it.
type Locker interface {
	// Acquire blocks until the lock is held or ctx is done.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
	// TryAcquire returns ok=false immediately if the lock is held elsewhere.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (l Lock, ok bool, err error)
}

// LocalLocker serializes holders within a single process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, _ time.Duration) (Lock, error) {
	s := l.ref(key)
	select {
	case s.ch <- struct{}{}:
		return &localLock{owner: l, key: key, s: s}, nil
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) TryAcquire(_ context.Context, key string, _ time.Duration) (Lock, bool, error) {
	s := l.ref(key)
	select {
	case s.ch <- struct{}{}:
		return &localLock{owner: l, key: key, s: s}, true, nil
	default:
		l.unref(key, s)
		return nil, false, nil
	}
}

func (l *LocalLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

type localLock struct {
	owner    *LocalLocker
	key      string
	s        *slot
	released bool
	mu       sync.Mutex
}

func (ll *localLock) Release(context.Context) error {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	if ll.released {
		return ErrNotHeld
	}
	ll.released = true
	<-ll.s.ch
	ll.owner.unref(ll.key, ll.s)
	return nil
}

// WithLock runs fn while holding key.
func WithLock(ctx context.Context, l Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	held, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer held.Release(context.WithoutCancel(ctx))
	return fn(ctx)
}
