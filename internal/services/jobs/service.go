package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

const (
	DefaultMaxRetries = 3
	DefaultPriority   = 0
	DefaultRetryBase  = 30 * time.Second
)

type service struct {
	repo       Repository
	log        *logger.Logger
	maxRetries int
	retryBase  time.Duration
}

// ServiceOption configures the job service
type ServiceOption func(*service)

// WithLogger sets the service logger
func WithLogger(log *logger.Logger) ServiceOption {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithDefaultMaxRetries sets the attempt budget for jobs enqueued without one
func WithDefaultMaxRetries(n int) ServiceOption {
	return func(s *service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithRetryBase sets the backoff before a failed job's first retry
func WithRetryBase(d time.Duration) ServiceOption {
	return func(s *service) {
		if d >= 0 {
			s.retryBase = d
		}
	}
}

func NewService(repo Repository, opts ...ServiceOption) Service {
	s := &service{
		repo:       repo,
		log:        logger.Nop(),
		maxRetries: DefaultMaxRetries,
		retryBase:  DefaultRetryBase,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) EnqueueJob(ctx context.Context, jobType models.JobType, payload models.JobPayload, opts ...JobOption) (*models.Job, error) {
	cfg := &jobConfig{
		Priority:   DefaultPriority,
		MaxRetries: s.maxRetries,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	job := &models.Job{
		Type:       jobType,
		Status:     models.JobStatusPending,
		Payload:    payload,
		Priority:   cfg.Priority,
		MaxRetries: cfg.MaxRetries,
		CreatedBy:  cfg.CreatedBy,
	}
	if cfg.uniqueKey != "" {
		job.UniqueKey = &cfg.uniqueKey
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	s.log.Debug("Enqueued job", "job_id", job.ID, "type", jobType, "priority", job.Priority)
	return job, nil
}

// EnqueueUniqueJob returns the active job of the same type and payload key
// instead of queuing a second one. The jobs table holds a unique index over
// active keys, so of two concurrent callers only one inserts.
func (s *service) EnqueueUniqueJob(ctx context.Context, jobType models.JobType, payload models.JobPayload, uniqueKey string, opts ...JobOption) (*models.Job, error) {
	uniqueValue, ok := payload[uniqueKey]
	if !ok {
		return nil, fmt.Errorf("unique key %s not found in payload", uniqueKey)
	}
	value := fmt.Sprintf("%v", uniqueValue)

	existing, err := s.activeJob(ctx, jobType, uniqueKey, value)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	key := UniqueKey(jobType, uniqueKey, value)
	opts = append(opts[:len(opts):len(opts)], func(cfg *jobConfig) {
		cfg.uniqueKey = key
	})
	job, err := s.EnqueueJob(ctx, jobType, payload, opts...)
	if err != nil {
		// Another caller inserted the same key first
		if existing, lookupErr := s.activeJob(ctx, jobType, uniqueKey, value); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return job, nil
}

// UniqueKey is the value stored in the unique_key column of a unique job
func UniqueKey(jobType models.JobType, key, value string) string {
	return fmt.Sprintf("%s:%s=%s", jobType, key, value)
}

func (s *service) activeJob(ctx context.Context, jobType models.JobType, key, value string) (*models.Job, error) {
	existing, err := s.repo.GetActiveJobByPayload(ctx, jobType, key, value)
	switch {
	case err == nil:
		s.log.Debug("Job already queued", "job_id", existing.ID, "type", jobType, key, value, "status", existing.Status)
		return existing, nil
	case errors.Is(err, ErrJobNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

func (s *service) GetJob(ctx context.Context, jobID uint) (*models.Job, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return job, nil
}

// GetJobForUser returns a job only when its payload names userID. Other
// users' jobs look missing.
func (s *service) GetJobForUser(ctx context.Context, userID, jobID uint) (*models.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if owner, ok := job.GetPayloadUint("user_id"); !ok || owner != userID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (s *service) ClaimNextJob(ctx context.Context, workerID string, jobTypes []models.JobType) (*models.Job, error) {
	job, err := s.repo.ClaimNextJob(ctx, workerID, jobTypes)
	if err != nil {
		if errors.Is(err, ErrNoJobsAvailable) || errors.Is(err, ErrJobAlreadyClaimed) {
			return nil, ErrNoJobsAvailable
		}
		return nil, fmt.Errorf("claiming job: %w", err)
	}

	s.log.Debug("Claimed job", "worker_id", workerID, "job_id", job.ID, "type", job.Type, "attempt", job.RetryCount+1)
	return job, nil
}

func (s *service) UpdateProgress(ctx context.Context, jobID uint, progress int) error {
	if err := s.repo.UpdateJobProgress(ctx, jobID, progress); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return err
		}
		return fmt.Errorf("updating job progress: %w", err)
	}
	return nil
}

func (s *service) CompleteJob(ctx context.Context, jobID uint, result models.JobResult) error {
	if err := s.repo.CompleteJob(ctx, jobID, result); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return err
		}
		return fmt.Errorf("completing job: %w", err)
	}

	s.log.Debug("Job completed", "job_id", jobID)
	return nil
}

// FailJob records a failed attempt. A *models.StructuredJobError carries its
// classification; any other error is treated as a retryable system error.
func (s *service) FailJob(ctx context.Context, jobID uint, jobErr error) error {
	f := Failure{
		Type:      models.ErrorTypeSystem,
		Code:      "unclassified",
		Message:   jobErr.Error(),
		RetryBase: s.retryBase,
	}
	var structured *models.StructuredJobError
	if errors.As(jobErr, &structured) {
		f.Type = structured.Type
		f.Code = structured.Code
		f.Message = structured.Message
		f.Details = structured.Details
		f.Permanent = structured.Permanent()
	}

	job, err := s.repo.FailJob(ctx, jobID, f)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return err
		}
		return fmt.Errorf("failing job: %w", err)
	}

	if job.IsRetryable() {
		s.log.Warn("Job failed, will retry",
			"job_id", jobID, "error_type", f.Type, "error_code", f.Code,
			"attempt", job.RetryCount, "max_retries", job.MaxRetries,
			"available_at", job.AvailableAt, "error", f.Message)
	} else {
		s.log.Error("Job failed permanently",
			"job_id", jobID, "error_type", f.Type, "error_code", f.Code, "error", f.Message)
	}
	return nil
}

func (s *service) ReleaseJob(ctx context.Context, jobID uint) error {
	if err := s.repo.ReleaseJob(ctx, jobID); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return err
		}
		return fmt.Errorf("releasing job: %w", err)
	}

	s.log.Debug("Job released back to pending", "job_id", jobID)
	return nil
}

// RetryFailedJob requeues a failed or permanently failed job immediately
func (s *service) RetryFailedJob(ctx context.Context, jobID uint) (*models.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != models.JobStatusFailed && job.Status != models.JobStatusPermanentlyFailed {
		return nil, fmt.Errorf("job %d cannot be retried: status is %s (only 'failed' or 'permanently_failed' jobs can be retried)",
			jobID, job.Status)
	}

	if err := s.repo.ResetJob(ctx, jobID); err != nil {
		return nil, fmt.Errorf("resetting job for retry: %w", err)
	}

	updated, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("getting updated job after retry: %w", err)
	}

	s.log.Info("Job manually retried", "job_id", jobID, "previous_status", job.Status)
	return updated, nil
}

func (s *service) CleanupOldJobs(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}

	deleted, err := s.repo.DeleteOldJobs(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("cleaning up old jobs: %w", err)
	}

	if deleted > 0 {
		s.log.Info("Deleted old jobs", "count", deleted, "retention", retention.String())
	}
	return deleted, nil
}
