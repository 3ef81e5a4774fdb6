package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/killallgit/audiolingu-api/pkg/logger"
)

const defaultCheckInterval = time.Minute

// DailyBatcher starts the daily batch
type DailyBatcher interface {
	EnqueueDaily(ctx context.Context) (*BatchResult, error)
}

// Scheduler runs the daily batch once per UTC day, at the first check at or
// after hour.
type Scheduler struct {
	batcher  DailyBatcher
	hour     int
	interval time.Duration
	now      func() time.Time
	log      *logger.Logger

	mu      sync.Mutex
	lastRun string
	cancel  context.CancelFunc
	done    chan struct{}
}

// SchedulerOption is a functional option for configuring the scheduler
type SchedulerOption func(*Scheduler)

// WithCheckInterval sets how often the clock is checked
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler creates the daily scheduler. hour is clamped to 0..23.
func NewScheduler(batcher DailyBatcher, hour int, log *logger.Logger, opts ...SchedulerOption) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	if hour < 0 {
		hour = 0
	}
	if hour > 23 {
		hour = 23
	}
	s := &Scheduler{
		batcher:  batcher,
		hour:     hour,
		interval: defaultCheckInterval,
		now:      time.Now,
		log:      log.With("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start checks the clock every interval until ctx is done or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunDue(ctx)
		for {
			select {
			case <-ticker.C:
				s.RunDue(ctx)
			case <-ctx.Done():
				s.log.Info("Scheduler stopped")
				return
			}
		}
	}()

	s.log.Info("Scheduler started", "daily_hour_utc", s.hour, "interval", s.interval.String())
}

// Stop cancels the loop and waits for a running batch to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunDue runs the batch if today's has not run and the hour has come. It
// reports whether a batch ran.
func (s *Scheduler) RunDue(ctx context.Context) bool {
	now := s.now().UTC()
	day := now.Format(time.DateOnly)

	s.mu.Lock()
	if now.Hour() < s.hour || s.lastRun == day {
		s.mu.Unlock()
		return false
	}
	s.lastRun = day
	s.mu.Unlock()

	res, err := s.batcher.EnqueueDaily(ctx)
	if err != nil {
		s.log.Error("Daily batch failed", "day", day, "error", err)
		s.mu.Lock()
		s.lastRun = ""
		s.mu.Unlock()
		return false
	}
	s.log.Info("Daily batch done", "day", day, "enqueued", res.Enqueued, "skipped", res.Skipped)
	return true
}
