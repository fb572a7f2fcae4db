// internal/vetting/clock/scheduler.go
package clock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vetting-engine/internal/common/lock"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/common/metrics"
)

// LeaderKey guards the tick across engine instances.
const LeaderKey = "vetting:scheduler:tick"

// Job is one piece of time-based work run on every tick.
type Job struct {
	Name string
	Run  func(ctx context.Context, now time.Time) error
}

// Instrumenter wraps a unit of work in a trace span.
type Instrumenter interface {
	StartSpan(ctx context.Context, operation string) (context.Context, func(err error))
}

type Scheduler struct {
	clock    Clock
	interval time.Duration
	jobs     []Job
	locker   lock.Locker
	instr    Instrumenter
	logger   logger.Logger

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

type Option func(*Scheduler)

// WithLeaderLock makes each tick run only on the instance holding LeaderKey.
func WithLeaderLock(l lock.Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

func WithInstrumenter(i Instrumenter) Option {
	return func(s *Scheduler) { s.instr = i }
}

func NewScheduler(clock Clock, interval time.Duration, log logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    clock,
		interval: interval,
		logger:   log.WithFields(map[string]interface{}{"component": "scheduler"}),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job. Jobs run in registration order.
func (s *Scheduler) Register(job Job) {
	s.jobs = append(s.jobs, job)
}

// Tick runs every job once at the current clock time. A failing or
// panicking job is logged and counted; the remaining jobs still run.
// It returns the number of jobs that failed.
func (s *Scheduler) Tick(ctx context.Context) int {
	if s.locker != nil {
		held, ok, err := s.locker.TryAcquire(ctx, LeaderKey, s.interval)
		if err != nil {
			s.logger.Warn("leader lock unavailable, skipping tick", map[string]interface{}{"error": err})
			return 0
		}
		if !ok {
			s.logger.Debug("another instance holds the tick", nil)
			return 0
		}
		defer held.Release(context.WithoutCancel(ctx))
	}

	now := s.clock.Now()
	failed := 0
	for _, job := range s.jobs {
		if err := s.runJob(ctx, job, now); err != nil {
			failed++
			metrics.SchedulerJobErrors.WithLabelValues(job.Name).Inc()
			s.logger.Error("scheduler job failed", map[string]interface{}{
				"job":   job.Name,
				"error": err,
			})
		}
	}
	return failed
}

func (s *Scheduler) runJob(ctx context.Context, job Job, now time.Time) (err error) {
	start := time.Now()
	if s.instr != nil {
		var end func(error)
		ctx, end = s.instr.StartSpan(ctx, "scheduler."+job.Name)
		defer func() { end(err) }()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		metrics.SchedulerJobDuration.WithLabelValues(job.Name).Observe(time.Since(start).Seconds())
	}()
	return job.Run(ctx, now)
}

// Start runs Tick every interval until Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("scheduler started", map[string]interface{}{
			"interval": s.interval.String(),
			"jobs":     len(s.jobs),
		})
		for {
			select {
			case <-ticker.C:
				s.Tick(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop waits for the running tick to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	s.logger.Info("scheduler stopped", nil)
}
