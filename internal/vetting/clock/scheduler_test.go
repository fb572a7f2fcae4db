// internal/vetting/clock/scheduler_test.go
package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"vetting-engine/internal/common/lock"
	"vetting-engine/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func TestManualClock(t *testing.T) {
	c := NewManualClock(day0)
	assert.Equal(t, day0, c.Now())
	assert.Equal(t, day0.Add(24*time.Hour), c.Advance(24*time.Hour))
	c.Set(day0)
	assert.Equal(t, day0, c.Now())
}

func TestScheduler_FailingJobDoesNotStopOthers(t *testing.T) {
	c := NewManualClock(day0)
	s := NewScheduler(c, time.Minute, logger.NewTestLogger(t))

	var ran []string
	var seen time.Time
	s.Register(Job{Name: "broken", Run: func(context.Context, time.Time) error {
		ran = append(ran, "broken")
		return errors.New("db down")
	}})
	s.Register(Job{Name: "panics", Run: func(context.Context, time.Time) error {
		ran = append(ran, "panics")
		panic("nil map")
	}})
	s.Register(Job{Name: "healthy", Run: func(_ context.Context, now time.Time) error {
		ran = append(ran, "healthy")
		seen = now
		return nil
	}})

	failed := s.Tick(context.Background())

	assert.Equal(t, 2, failed)
	assert.Equal(t, []string{"broken", "panics", "healthy"}, ran)
	assert.Equal(t, day0, seen)
}

func TestScheduler_LeaderLockSkipsWhenHeld(t *testing.T) {
	locker := lock.NewLocalLocker()
	held, ok, err := locker.TryAcquire(context.Background(), LeaderKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	runs := 0
	s := NewScheduler(NewManualClock(day0), time.Minute, logger.NewNoOpLogger(), WithLeaderLock(locker))
	s.Register(Job{Name: "count", Run: func(context.Context, time.Time) error {
		runs++
		return nil
	}})

	s.Tick(context.Background())
	assert.Equal(t, 0, runs)

	require.NoError(t, held.Release(context.Background()))
	s.Tick(context.Background())
	assert.Equal(t, 1, runs)
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(SystemClock{}, 5*time.Millisecond, logger.NewNoOpLogger())
	ticks := make(chan struct{}, 10)
	s.Register(Job{Name: "tick", Run: func(context.Context, time.Time) error {
		select {
		case ticks <- struct{}{}:
		default:
		}
		return nil
	}})

	s.Start(context.Background())
	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("scheduler never ticked")
	}
	s.Stop()
	s.Stop()
}
