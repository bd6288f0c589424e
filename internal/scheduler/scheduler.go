// Package scheduler runs periodic connectivity sweeps over every registered
// camera and gate.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/gatekeeper-core/internal/probe"
)

// Sweeper probes every device. *probe.Prober satisfies it.
type Sweeper interface {
	CheckAll(ctx context.Context) ([]probe.Result, error)
}

// Logger is the logging dependency.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Scheduler triggers a sweep on a cron schedule. A sweep still running when
// the next tick fires causes that tick to be skipped.
type Scheduler struct {
	schedule string
	sweeper  Sweeper
	cron     *cron.Cron
	logger   Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	sweeps int
	last   time.Time
}

// New parses schedule ("@every 30s", "*/5 * * * *") and returns a stopped
// Scheduler.
func New(schedule string, sweeper Sweeper) (*Scheduler, error) {
	if sweeper == nil {
		return nil, errors.New("scheduler: sweeper is required")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}
	return &Scheduler{
		schedule: schedule,
		sweeper:  sweeper,
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start begins scheduling. Sweeps run under ctx and stop being scheduled
// when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("scheduler: already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, s.sweep); err != nil {
		s.cancel()
		return fmt.Errorf("scheduler: adding sweep: %w", err)
	}
	s.cron = c
	c.Start()

	go func(done <-chan struct{}) {
		<-done
		s.stop(c)
	}(s.ctx.Done())

	s.logger.Info("probe scheduler started", "schedule", s.schedule)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
// Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	s.stop(c)
}

// stop halts c if it is still the running instance.
func (s *Scheduler) stop(c *cron.Cron) {
	s.mu.Lock()
	if c == nil || s.cron != c {
		s.mu.Unlock()
		return
	}
	s.cron = nil
	s.cancel()
	s.mu.Unlock()

	<-c.Stop().Done()
	s.logger.Info("probe scheduler stopped")
}

// Sweeps returns how many sweeps have completed and when the last one
// finished.
func (s *Scheduler) Sweeps() (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeps, s.last
}

func (s *Scheduler) sweep() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	started := time.Now()
	results, err := s.sweeper.CheckAll(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("probe sweep failed", "error", err)
		}
		return
	}

	online := 0
	for _, r := range results {
		if r.IsOnline {
			online++
		}
	}

	s.mu.Lock()
	s.sweeps++
	s.last = time.Now()
	s.mu.Unlock()

	s.logger.Debug("probe sweep complete",
		"devices", len(results),
		"online", online,
		"duration", time.Since(started).Round(time.Millisecond),
	)
}
