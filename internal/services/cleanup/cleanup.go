package cleanup

import (
	"context"
	"time"

	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// JobPruner deletes finished jobs older than the retention
type JobPruner interface {
	CleanupOldJobs(ctx context.Context, retention time.Duration) (int64, error)
}

// StaleEpisodes fails runs that stopped making progress
type StaleEpisodes interface {
	FailStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// CheckpointPruner deletes checkpoints of finished runs
type CheckpointPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds the cleanup timings
type Config struct {
	Interval     time.Duration
	JobRetention time.Duration
	StaleAfter   time.Duration
}

// Report counts the rows one pass touched
type Report struct {
	JobsDeleted        int64
	EpisodesFailed     int64
	CheckpointsDeleted int64
}

// Service periodically removes old jobs and checkpoints and fails episodes
// stuck in generating
type Service struct {
	jobs        JobPruner
	episodes    StaleEpisodes
	checkpoints CheckpointPruner
	cfg         Config
	log         *logger.Logger
	cancel      context.CancelFunc
}

// NewService creates a new cleanup service
func NewService(jobs JobPruner, episodes StaleEpisodes, checkpoints CheckpointPruner, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.JobRetention <= 0 {
		cfg.JobRetention = 7 * 24 * time.Hour
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Hour
	}
	return &Service{
		jobs:        jobs,
		episodes:    episodes,
		checkpoints: checkpoints,
		cfg:         cfg,
		log:         log.With("component", "cleanup"),
	}
}

// Start begins the cleanup service
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Run initial cleanup
	s.RunOnce(ctx)

	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-ctx.Done():
				s.log.Info("Cleanup service stopped")
				return
			}
		}
	}()

	s.log.Info("Cleanup service started", "interval", s.cfg.Interval.String(), "job_retention", s.cfg.JobRetention.String(), "stale_after", s.cfg.StaleAfter.String())
}

// Stop stops the cleanup service
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// RunOnce performs one pass. Each part runs even if an earlier one failed.
func (s *Service) RunOnce(ctx context.Context) Report {
	var r Report
	now := time.Now().UTC()
	var err error

	if s.episodes != nil {
		if r.EpisodesFailed, err = s.episodes.FailStale(ctx, now.Add(-s.cfg.StaleAfter)); err != nil {
			s.log.Error("Failing stale episodes", "error", err)
		} else if r.EpisodesFailed > 0 {
			s.log.Warn("Failed stale episodes", "count", r.EpisodesFailed)
		}
	}
	if s.jobs != nil {
		if r.JobsDeleted, err = s.jobs.CleanupOldJobs(ctx, s.cfg.JobRetention); err != nil {
			s.log.Error("Cleaning up jobs", "error", err)
		}
	}
	if s.checkpoints != nil {
		if r.CheckpointsDeleted, err = s.checkpoints.DeleteBefore(ctx, now.Add(-s.cfg.JobRetention)); err != nil {
			s.log.Error("Cleaning up checkpoints", "error", err)
		} else if r.CheckpointsDeleted > 0 {
			s.log.Debug("Deleted checkpoints", "count", r.CheckpointsDeleted)
		}
	}
	return r
}
