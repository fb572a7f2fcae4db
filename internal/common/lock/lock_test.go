// internal/common/lock/lock_test.go
package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// ==========================
// Local locker
// ==========================

func TestLocalLocker_Serializes(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = WithLock(ctx, l, "app-1", time.Second, func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, l.slots)
}

func TestLocalLocker_TryAcquire(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	held, ok, err := l.TryAcquire(ctx, "k", 0)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(ctx, "k", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, held.Release(ctx))
	assert.ErrorIs(t, held.Release(ctx), ErrNotHeld)

	_, ok, _ = l.TryAcquire(ctx, "k", 0)
	assert.True(t, ok)
}

func TestLocalLocker_AcquireHonoursContext(t *testing.T) {
	l := NewLocalLocker()
	held, err := l.Acquire(context.Background(), "k", 0)
	require.NoError(t, err)
	defer held.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ==========================
// Redis locker
// ==========================

func TestRedisLocker_AcquireRelease(t *testing.T) {
	mr, client := setupRedis(t)
	l := NewRedisLocker(client)
	ctx := context.Background()

	held, ok, err := l.TryAcquire(ctx, "vetting:application:a1", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("vetting:application:a1"))

	_, ok, err = l.TryAcquire(ctx, "vetting:application:a1", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, held.Release(ctx))
	assert.False(t, mr.Exists("vetting:application:a1"))
}

func TestRedisLocker_ReleaseAfterExpiryDoesNotStealLock(t *testing.T) {
	mr, client := setupRedis(t)
	l := NewRedisLocker(client)
	ctx := context.Background()

	first, ok, err := l.TryAcquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	second, ok, err := l.TryAcquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, first.Release(ctx), ErrNotHeld)
	assert.True(t, mr.Exists("k"))
	require.NoError(t, second.Release(ctx))
}

func TestRedisLocker_AcquireWaits(t *testing.T) {
	_, client := setupRedis(t)
	l := NewRedisLocker(client)
	l.pollInterval = 5 * time.Millisecond
	ctx := context.Background()

	held, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = held.Release(ctx)
	}()

	next, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, next.Release(ctx))
}
