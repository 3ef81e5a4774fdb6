package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/jobs"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// UserSource lists the users a batch runs for
type UserSource interface {
	EligibleUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, userID uint) (*models.User, error)
}

// BatchResult counts what one batch enqueue did. Skipped users already had
// an active generation job or could not be enqueued.
type BatchResult struct {
	Eligible int    `json:"eligible"`
	Enqueued int    `json:"enqueued"`
	Skipped  int    `json:"skipped"`
	JobIDs   []uint `json:"job_ids,omitempty"`
}

// Controller turns triggers into queued generation jobs. The worker pools
// bound how many of them execute at once.
type Controller struct {
	jobs  jobs.Service
	users UserSource
	log   *logger.Logger
}

func NewController(jobService jobs.Service, users UserSource, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{jobs: jobService, users: users, log: log.With("component", "fanout")}
}

// EnqueueDaily queues one run for every user opted into daily episodes and
// not opted out of email. Eligibility and the email preference are read
// once, here.
func (c *Controller) EnqueueDaily(ctx context.Context) (*BatchResult, error) {
	users, err := c.users.EligibleUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading eligible users: %w", err)
	}
	res := c.enqueueAll(ctx, users, models.TriggerDaily)
	c.log.Info("Daily batch enqueued", "eligible", res.Eligible, "enqueued", res.Enqueued, "skipped", res.Skipped)
	return res, nil
}

// EnqueueForUsers queues a daily-style run for the given users whether or
// not they opted in. Unknown ids are skipped.
func (c *Controller) EnqueueForUsers(ctx context.Context, userIDs []uint) (*BatchResult, error) {
	users := make([]models.User, 0, len(userIDs))
	skipped := 0
	seen := make(map[uint]bool, len(userIDs))
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		user, err := c.users.GetUser(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn("Skipping user", "user_id", id, "error", err)
			skipped++
			continue
		}
		users = append(users, *user)
	}
	res := c.enqueueAll(ctx, users, models.TriggerDaily)
	res.Eligible += skipped
	res.Skipped += skipped
	return res, nil
}

// EnqueueGeneration queues a run the user asked for. An active run for the
// same user is returned instead of starting a second one.
func (c *Controller) EnqueueGeneration(ctx context.Context, userID uint) (*models.Job, error) {
	return c.jobs.EnqueueUniqueJob(ctx, models.JobTypePodcastGeneration, models.JobPayload{
		models.PayloadUserID:  userID,
		models.PayloadTrigger: models.TriggerManual,
		models.PayloadNotify:  false,
	}, models.PayloadUserID, jobs.WithPriority(1), jobs.WithCreatedBy(fmt.Sprintf("user:%d", userID)))
}

// ScheduleFeedbackAnalysis queues at most one pending analysis per user
func (c *Controller) ScheduleFeedbackAnalysis(ctx context.Context, userID uint) error {
	_, err := c.jobs.EnqueueUniqueJob(ctx, models.JobTypeFeedbackAnalysis, models.JobPayload{
		models.PayloadUserID: userID,
	}, models.PayloadUserID, jobs.WithCreatedBy("system"))
	if err != nil {
		return fmt.Errorf("scheduling feedback analysis: %w", err)
	}
	return nil
}

func (c *Controller) enqueueAll(ctx context.Context, users []models.User, trigger string) *BatchResult {
	res := &BatchResult{Eligible: len(users)}
	start := time.Now().UTC()
	for _, u := range users {
		job, err := c.jobs.EnqueueUniqueJob(ctx, models.JobTypePodcastGeneration, models.JobPayload{
			models.PayloadUserID:  u.ID,
			models.PayloadTrigger: trigger,
			models.PayloadNotify:  !u.EmailOptOut,
		}, models.PayloadUserID, jobs.WithCreatedBy("scheduler"))
		if err != nil {
			c.log.Warn("Failed to enqueue generation", "user_id", u.ID, "error", err)
			res.Skipped++
			continue
		}
		if job.CreatedAt.Before(start) {
			res.Skipped++
			continue
		}
		res.Enqueued++
		res.JobIDs = append(res.JobIDs, job.ID)
	}
	return res
}
