package workers

import (
	"context"
	"fmt"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/generation"
	"github.com/killallgit/audiolingu-api/internal/services/jobs"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// PodcastRunner executes or resumes the podcast run for a job. Both the local
// orchestrator and the Temporal runner satisfy it.
type PodcastRunner interface {
	Run(ctx context.Context, jobID, userID uint) (*generation.State, error)
}

// GenerationProcessor processes podcast generation jobs
type GenerationProcessor struct {
	jobService jobs.Service
	runner     PodcastRunner
	log        *logger.Logger
}

// NewGenerationProcessor creates a new generation processor
func NewGenerationProcessor(jobService jobs.Service, runner PodcastRunner, log *logger.Logger) *GenerationProcessor {
	if log == nil {
		log = logger.Nop()
	}
	return &GenerationProcessor{jobService: jobService, runner: runner, log: log}
}

// CanProcess returns true if this processor can handle the job type
func (p *GenerationProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypePodcastGeneration
}

// ProcessJob runs the podcast workflow for the job's user. A fatal step
// failure is permanent: the episode is already marked failed and a new job
// would start a new run.
func (p *GenerationProcessor) ProcessJob(ctx context.Context, job *models.Job) error {
	if !p.CanProcess(job.Type) {
		return fmt.Errorf("unsupported job type: %s", job.Type)
	}

	userID, err := payloadUint(job, models.PayloadUserID)
	if err != nil {
		return err
	}

	state, err := p.runner.Run(ctx, job.ID, userID)
	if err != nil {
		if ctx.Err() == nil && generation.IsStepFailure(err) {
			return models.NewRunFailedError("step_failed", err.Error(), err)
		}
		return models.NewSystemError("run_interrupted", fmt.Sprintf("podcast run for user %d did not finish", userID), err)
	}

	result := models.JobResult{
		models.PayloadEpisodeID: state.EpisodeID,
		"cover_generated":       state.CoverGenerated,
		"duration_seconds":      state.DurationSeconds,
		"word_count":            state.WordCount,
		"sentence_count":        state.SentenceCount,
	}

	if job.GetPayloadBool(models.PayloadNotify) {
		emailJob, err := p.jobService.EnqueueJob(ctx, models.JobTypeEmailNotification, models.JobPayload{
			models.PayloadUserID:    userID,
			models.PayloadEpisodeID: state.EpisodeID,
		}, jobs.WithCreatedBy("system"))
		if err != nil {
			p.log.Warn("Failed to enqueue episode email", "job_id", job.ID, "user_id", userID, "error", err)
		} else {
			result["email_job_id"] = emailJob.ID
		}
	}

	if err := p.jobService.CompleteJob(ctx, job.ID, result); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// payloadUint reads a required positive id from the payload
func payloadUint(job *models.Job, key string) (uint, error) {
	v, ok := job.GetPayloadUint(key)
	if !ok || v == 0 {
		return 0, models.NewValidationError("invalid_payload", fmt.Sprintf("%s is required", key), nil)
	}
	return v, nil
}
