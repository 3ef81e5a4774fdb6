package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/jobs"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
	"github.com/killallgit/audiolingu-api/internal/services/steps"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// Feedback limits
const (
	DefaultFeedbackLimit = 50
	MaxFeedbackLimit     = 100
)

// FeedbackProfiles is the profile access feedback analysis needs
type FeedbackProfiles interface {
	LoadSnapshot(ctx context.Context, userID uint) (*profiles.Snapshot, error)
	FeedbackData(ctx context.Context, userID uint, limit int) ([]profiles.FeedbackEntry, error)
	SetInternalPrompt(ctx context.Context, userID uint, prompt string) error
}

// FeedbackProcessor turns a learner's ratings into new writer guidance
type FeedbackProcessor struct {
	jobService jobs.Service
	profiles   FeedbackProfiles
	step       *steps.FeedbackAnalysisStep
	limit      int
	log        *logger.Logger
}

// NewFeedbackProcessor creates the processor. limit is clamped to 1..100 and
// defaults to 50.
func NewFeedbackProcessor(jobService jobs.Service, source FeedbackProfiles, step *steps.FeedbackAnalysisStep, limit int, log *logger.Logger) *FeedbackProcessor {
	if log == nil {
		log = logger.Nop()
	}
	return &FeedbackProcessor{
		jobService: jobService,
		profiles:   source,
		step:       step,
		limit:      profiles.ClampLimit(limit, DefaultFeedbackLimit, MaxFeedbackLimit),
		log:        log,
	}
}

func (p *FeedbackProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeFeedbackAnalysis
}

func (p *FeedbackProcessor) ProcessJob(ctx context.Context, job *models.Job) error {
	if !p.CanProcess(job.Type) {
		return fmt.Errorf("unsupported job type: %s", job.Type)
	}

	userID, err := payloadUint(job, models.PayloadUserID)
	if err != nil {
		return err
	}

	snap, err := p.profiles.LoadSnapshot(ctx, userID)
	if err != nil {
		if errors.Is(err, profiles.ErrUserNotFound) {
			return models.NewNotFoundError("user_not_found", fmt.Sprintf("user %d not found", userID), err)
		}
		return err
	}
	feedback, err := p.profiles.FeedbackData(ctx, userID, p.limit)
	if err != nil {
		return err
	}

	guidance, err := p.step.Run(ctx, steps.FeedbackInput{Snapshot: snap, Feedback: feedback})
	if err != nil {
		return models.NewCapabilityError("analysis_failed", "feedback analysis failed", err)
	}

	updated := guidance != snap.InternalPrompt
	if updated {
		if err := p.profiles.SetInternalPrompt(ctx, userID, guidance); err != nil {
			return err
		}
		p.log.Info("Updated writer guidance", "user_id", userID, "feedback_count", len(feedback))
	}

	return p.jobService.CompleteJob(ctx, job.ID, models.JobResult{
		"feedback_count": len(feedback),
		"updated":        updated,
	})
}
