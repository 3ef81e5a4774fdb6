package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/killallgit/audiolingu-api/internal/models"
)

// Repository errors
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrNoJobsAvailable   = errors.New("no jobs available")
	ErrJobAlreadyClaimed = errors.New("job already claimed")
)

// Failure describes how a job attempt ended in error
type Failure struct {
	Type    models.JobErrorType
	Code    string
	Message string
	Details string

	// Permanent skips the remaining attempts
	Permanent bool
	// RetryBase is the backoff before the first retry; later retries double it
	RetryBase time.Duration
}

// Repository defines the interface for job persistence
type Repository interface {
	// Create operations
	CreateJob(ctx context.Context, job *models.Job) error

	// Read operations
	GetJob(ctx context.Context, id uint) (*models.Job, error)
	GetActiveJobByPayload(ctx context.Context, jobType models.JobType, key, value string) (*models.Job, error)
	GetJobsByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error)

	// Update operations
	ClaimNextJob(ctx context.Context, workerID string, jobTypes []models.JobType) (*models.Job, error)
	UpdateJobProgress(ctx context.Context, jobID uint, progress int) error
	CompleteJob(ctx context.Context, jobID uint, result models.JobResult) error
	FailJob(ctx context.Context, jobID uint, f Failure) (*models.Job, error)
	ReleaseJob(ctx context.Context, jobID uint) error
	ResetJob(ctx context.Context, jobID uint) error

	// Delete operations
	DeleteOldJobs(ctx context.Context, olderThan time.Time) (int64, error)
}

// repository implements Repository interface
type repository struct {
	db *gorm.DB
}

// NewRepository creates a new job repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

// CreateJob creates a new job
func (r *repository) CreateJob(ctx context.Context, job *models.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetJob retrieves a job by ID
func (r *repository) GetJob(ctx context.Context, id uint) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).First(&job, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return &job, nil
}

// payloadField compares one top-level payload value as text on either driver
func (r *repository) payloadField(key string) (string, string) {
	if r.db.Dialector.Name() == "postgres" {
		return "payload::jsonb ->> ?", key
	}
	return "CAST(json_extract(payload, ?) AS TEXT)", "$." + key
}

// GetActiveJobByPayload finds a non-terminal job of a type whose payload key
// holds value
func (r *repository) GetActiveJobByPayload(ctx context.Context, jobType models.JobType, key, value string) (*models.Job, error) {
	var job models.Job
	expr, arg := r.payloadField(key)

	err := r.db.WithContext(ctx).
		Where("type = ?", jobType).
		Where("status IN ?", []models.JobStatus{models.JobStatusPending, models.JobStatusProcessing, models.JobStatusFailed}).
		Where(expr+" = ?", arg, value).
		Order("id DESC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("getting job by type and payload: %w", err)
	}
	return &job, nil
}

// GetJobsByStatus retrieves jobs by status
func (r *repository) GetJobsByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	var jobs []*models.Job
	query := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&jobs).Error
	return jobs, err
}

// ClaimNextJob atomically claims the next due job for a worker. Attempts are
// counted when a job fails, not when it is claimed.
func (r *repository) ClaimNextJob(ctx context.Context, workerID string, jobTypes []models.JobType) (*models.Job, error) {
	var job models.Job
	now := time.Now().UTC()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// SQLite ignores the locking clause; Postgres skips rows other workers hold
		query := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("(status = ? OR (status = ? AND retry_count < max_retries))",
				models.JobStatusPending, models.JobStatusFailed).
			Where("available_at <= ?", now)

		if len(jobTypes) > 0 {
			query = query.Where("type IN ?", jobTypes)
		}

		err := query.Order("priority DESC, available_at ASC, id ASC").First(&job).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoJobsAvailable
			}
			return fmt.Errorf("finding job to claim: %w", err)
		}

		res := tx.Model(&models.Job{}).
			Where("id = ? AND status = ?", job.ID, job.Status).
			Updates(map[string]interface{}{
				"status":     models.JobStatusProcessing,
				"worker_id":  workerID,
				"started_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("updating claimed job: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrJobAlreadyClaimed
		}

		job.Status = models.JobStatusProcessing
		job.WorkerID = workerID
		job.StartedAt = &now
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJobProgress updates the progress of a job
func (r *repository) UpdateJobProgress(ctx context.Context, jobID uint, progress int) error {
	// Ensure progress is within bounds
	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}

	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusProcessing).
		Update("progress", progress)

	if result.Error != nil {
		return fmt.Errorf("updating job progress: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// CompleteJob marks a job as completed with a result
func (r *repository) CompleteJob(ctx context.Context, jobID uint, result models.JobResult) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       models.JobStatusCompleted,
		"progress":     100,
		"completed_at": now,
		"result":       result,
		"worker_id":    "",
	}

	res := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ?", jobID).
		Updates(updates)

	if res.Error != nil {
		return fmt.Errorf("completing job: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// FailJob records a failed attempt. The job is retried after a backoff
// unless the failure is permanent or the attempts are used up.
func (r *repository) FailJob(ctx context.Context, jobID uint, f Failure) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return fmt.Errorf("finding job to fail: %w", err)
		}

		now := time.Now().UTC()
		job.RetryCount++
		job.LastFailedAt = &now
		job.WorkerID = ""
		job.SetErrorDetails(f.Type, f.Code, f.Message, f.Details)

		if f.Permanent || job.RetryCount >= job.MaxRetries {
			job.Status = models.JobStatusPermanentlyFailed
			job.CompletedAt = &now
		} else {
			job.Status = models.JobStatusFailed
			job.AvailableAt = now.Add(job.RetryDelay(f.RetryBase))
		}

		updates := map[string]interface{}{
			"status":         job.Status,
			"error":          job.Error,
			"error_type":     job.ErrorType,
			"error_code":     job.ErrorCode,
			"error_details":  job.ErrorDetails,
			"last_failed_at": now,
			"retry_count":    job.RetryCount,
			"worker_id":      "",
			"available_at":   job.AvailableAt,
			"completed_at":   job.CompletedAt,
		}
		if err := tx.Model(&models.Job{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failing job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ReleaseJob returns a processing job to pending, e.g. on worker shutdown
func (r *repository) ReleaseJob(ctx context.Context, jobID uint) error {
	updates := map[string]interface{}{
		"status":     models.JobStatusPending,
		"worker_id":  "",
		"started_at": nil,
	}

	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusProcessing).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("releasing job: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// ResetJob makes a failed job claimable again with a fresh attempt budget
func (r *repository) ResetJob(ctx context.Context, jobID uint) error {
	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status IN ?", jobID, []models.JobStatus{models.JobStatusFailed, models.JobStatusPermanentlyFailed}).
		Updates(map[string]interface{}{
			"status":       models.JobStatusPending,
			"retry_count":  0,
			"progress":     0,
			"available_at": time.Now().UTC(),
			"completed_at": nil,
			"worker_id":    "",
		})

	if result.Error != nil {
		return fmt.Errorf("resetting job: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// DeleteOldJobs deletes terminal jobs last touched before the cutoff
func (r *repository) DeleteOldJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Unscoped().
		Where("updated_at < ?", olderThan).
		Where("status IN ?", []models.JobStatus{
			models.JobStatusCompleted,
			models.JobStatusPermanentlyFailed,
			models.JobStatusCancelled,
		}).
		Delete(&models.Job{})

	if result.Error != nil {
		return 0, fmt.Errorf("deleting old jobs: %w", result.Error)
	}

	return result.RowsAffected, nil
}
