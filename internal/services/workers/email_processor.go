package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/email"
	"github.com/killallgit/audiolingu-api/internal/services/jobs"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// UserLoader reads account details for notifications
type UserLoader interface {
	GetUser(ctx context.Context, userID uint) (*models.User, error)
}

// EpisodeLoader reads an episode without an ownership check
type EpisodeLoader interface {
	Get(ctx context.Context, id uint) (*models.Episode, error)
}

// EmailProcessor sends the episode-ready notification
type EmailProcessor struct {
	jobService jobs.Service
	users      UserLoader
	episodes   EpisodeLoader
	sender     email.Sender
	appURL     string
	log        *logger.Logger
}

func NewEmailProcessor(jobService jobs.Service, users UserLoader, episodes EpisodeLoader, sender email.Sender, appURL string, log *logger.Logger) *EmailProcessor {
	if log == nil {
		log = logger.Nop()
	}
	return &EmailProcessor{
		jobService: jobService,
		users:      users,
		episodes:   episodes,
		sender:     sender,
		appURL:     appURL,
		log:        log,
	}
}

func (p *EmailProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeEmailNotification
}

func (p *EmailProcessor) ProcessJob(ctx context.Context, job *models.Job) error {
	if !p.CanProcess(job.Type) {
		return fmt.Errorf("unsupported job type: %s", job.Type)
	}

	userID, err := payloadUint(job, models.PayloadUserID)
	if err != nil {
		return err
	}
	episodeID, err := payloadUint(job, models.PayloadEpisodeID)
	if err != nil {
		return err
	}

	user, err := p.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, profiles.ErrUserNotFound) {
			return models.NewNotFoundError("user_not_found", fmt.Sprintf("user %d not found", userID), err)
		}
		return err
	}
	if strings.TrimSpace(user.Email) == "" {
		return p.jobService.CompleteJob(ctx, job.ID, models.JobResult{"skipped": "no_address"})
	}

	ep, err := p.episodes.Get(ctx, episodeID)
	if err != nil {
		return models.NewNotFoundError("episode_not_found", fmt.Sprintf("episode %d not found", episodeID), err)
	}

	msg, err := email.RenderDailyEpisode(user.Email, email.DailyEpisodeData{
		FirstName:    user.FirstName,
		EpisodeTitle: ep.Title,
		AppURL:       p.appURL,
	})
	if err != nil {
		return models.NewSystemError("render_failed", "rendering episode email", err)
	}

	id, err := p.sender.Send(ctx, msg)
	if err != nil {
		return models.NewCapabilityError("send_failed", "sending episode email", err)
	}
	p.log.Info("Sent episode email", "job_id", job.ID, "user_id", userID, "episode_id", episodeID, "message_id", id)

	return p.jobService.CompleteJob(ctx, job.ID, models.JobResult{"message_id": id})
}
