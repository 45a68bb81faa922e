// Package scheduler drives the collector on a schedule from a single control
// loop and owns the run flag and shutdown cleanup.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule        = "@every 1m"
	DefaultTick            = time.Second
	DefaultErrorBackoff    = 5 * time.Second
	DefaultCleanupInterval = time.Hour
	DefaultMemoryLimitMB   = 256

	memoryCheckInterval = time.Minute
	shutdownTimeout     = 30 * time.Second
)

// Job is the unit of work the scheduler drives.
type Job interface {
	// Collect runs one cycle. It must not return until the cycle is done.
	Collect(ctx context.Context)
	// ReleaseIdle frees idle resources between cycles.
	ReleaseIdle()
	// Shutdown releases everything the job holds.
	Shutdown(ctx context.Context) error
}

// Options configures a Scheduler. Zero values use the defaults above.
type Options struct {
	Schedule        string
	Tick            time.Duration
	ErrorBackoff    time.Duration
	CleanupInterval time.Duration
	MemoryLimitMB   uint64
}

// Scheduler runs Job on its schedule until stopped. Cycles never overlap.
type Scheduler struct {
	job      Job
	schedule cron.Schedule
	opts     Options
	logger   *slog.Logger

	memProbe func() (uint64, error)
	now      func() time.Time

	running      atomic.Bool
	stop         chan struct{}
	stopOnce     sync.Once
	shutdownOnce sync.Once
}

// New parses the schedule expression and returns a stopped Scheduler.
func New(job Job, opts Options, logger *slog.Logger) (*Scheduler, error) {
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = DefaultErrorBackoff
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.MemoryLimitMB == 0 {
		opts.MemoryLimitMB = DefaultMemoryLimitMB
	}

	sched, err := cron.ParseStandard(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", opts.Schedule, err)
	}

	return &Scheduler{
		job:      job,
		schedule: sched,
		opts:     opts,
		logger:   logger,
		memProbe: processRSS,
		now:      time.Now,
		stop:     make(chan struct{}),
	}, nil
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Stop asks the loop to exit after the current iteration. It is safe to call
// from any goroutine and more than once.
func (s *Scheduler) Stop(reason string) {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping scheduler", "reason", reason)
		s.running.Store(false)
		close(s.stop)
	})
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

type loopState struct {
	nextRun     time.Time
	lastCleanup time.Time
	lastMemory  time.Time
}

// Run performs one immediate collection and then loops until Stop is called
// or ctx is cancelled. Cancellation never interrupts a running cycle. Final
// cleanup runs exactly once before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.stopped() {
		s.running.Store(true)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop("context cancelled")
		case <-done:
		}
	}()

	cycleCtx := context.WithoutCancel(ctx)

	s.logger.Info("starting weather collector scheduler", "schedule", s.opts.Schedule)

	if s.running.Load() {
		s.logger.Info("performing initial data collection")
		s.runSafely(func() { s.job.Collect(cycleCtx) })
	}

	now := s.now()
	state := &loopState{
		nextRun:     s.schedule.Next(now),
		lastCleanup: now,
		lastMemory:  now,
	}
	s.logger.Info("scheduled data collection", "next_run", state.nextRun.Format(time.RFC3339))

	for s.running.Load() && !s.stopped() {
		wait := s.opts.Tick
		if !s.step(cycleCtx, state) {
			wait = s.opts.ErrorBackoff
		}
		s.sleep(wait)
	}

	s.logger.Info("Weather collector stopped")
	s.shutdown(cycleCtx)
	return nil
}

// step runs due work. It returns false if the body panicked.
func (s *Scheduler) step(ctx context.Context, state *loopState) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("error in scheduler loop",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			ok = false
		}
	}()

	if !s.now().Before(state.nextRun) {
		s.job.Collect(ctx)
		state.nextRun = s.schedule.Next(s.now())
		s.logger.Debug("next collection scheduled", "next_run", state.nextRun.Format(time.RFC3339))
	}

	if s.cleanupDue(state) {
		s.releaseResources()
		state.lastCleanup = s.now()
	}
	return true
}

func (s *Scheduler) runSafely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("error in scheduler loop",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

func (s *Scheduler) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.stop:
	case <-t.C:
	}
}

func (s *Scheduler) shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		s.runSafely(func() {
			if err := s.job.Shutdown(ctx); err != nil {
				s.logger.Error("error during shutdown cleanup", "error", err)
			}
		})
		reclaimMemory()
		s.logger.Info("shutdown cleanup complete")
	})
}
