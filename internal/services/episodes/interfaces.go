package episodes

import (
	"context"
	"time"

	"github.com/killallgit/audiolingu-api/internal/models"
)

// EpisodeRepository defines the interface for episode persistence
type EpisodeRepository interface {
	// Create operations
	CreateEpisode(ctx context.Context, episode *models.Episode) error

	// Read operations
	GetEpisodeByID(ctx context.Context, id uint) (*models.Episode, error)
	GetEpisodeByRunKey(ctx context.Context, runKey string) (*models.Episode, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Episode, int64, error)

	// Update operations
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
	UpdateGenerating(ctx context.Context, id uint, fields map[string]any) error
	UpsertProgress(ctx context.Context, progress *models.EpisodeProgress) error
	FailStale(ctx context.Context, cutoff time.Time, message string) (int64, error)
}

// FeedbackScheduler queues a feedback analysis run for a user
type FeedbackScheduler interface {
	ScheduleFeedbackAnalysis(ctx context.Context, userID uint) error
}
