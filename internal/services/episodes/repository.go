package episodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/killallgit/audiolingu-api/internal/models"
)

type Repository struct {
	db *gorm.DB
}

// Ensure Repository implements EpisodeRepository interface
var _ EpisodeRepository = (*Repository)(nil)

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateEpisode(ctx context.Context, episode *models.Episode) error {
	if err := r.db.WithContext(ctx).Create(episode).Error; err != nil {
		return fmt.Errorf("creating episode: %w", err)
	}
	return nil
}

func (r *Repository) GetEpisodeByID(ctx context.Context, id uint) (*models.Episode, error) {
	var episode models.Episode
	if err := r.db.WithContext(ctx).First(&episode, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError(id)
		}
		return nil, fmt.Errorf("getting episode: %w", err)
	}
	return &episode, nil
}

// GetEpisodeByRunKey returns the episode created by a run, or nil
func (r *Repository) GetEpisodeByRunKey(ctx context.Context, runKey string) (*models.Episode, error) {
	var episode models.Episode
	if err := r.db.WithContext(ctx).Where("run_key = ?", runKey).First(&episode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting episode by run key: %w", err)
	}
	return &episode, nil
}

// ListByUser returns a user's episodes newest first, with the total count
func (r *Repository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Episode, int64, error) {
	var episodes []models.Episode
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Episode{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting episodes: %w", err)
	}

	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&episodes).Error; err != nil {
		return nil, 0, fmt.Errorf("getting episodes: %w", err)
	}

	return episodes, total, nil
}

// UpdateFields patches the given columns of one episode
func (r *Repository) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	result := r.db.WithContext(ctx).Model(&models.Episode{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("updating episode: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return NewNotFoundError(id)
	}
	return nil
}

// UpdateGenerating patches an episode only while its run is still generating
func (r *Repository) UpdateGenerating(ctx context.Context, id uint, fields map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.Episode{}).
		Where("id = ? AND status = ?", id, models.EpisodeStatusGenerating).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("updating episode: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var statuses []models.EpisodeStatus
	err := r.db.WithContext(ctx).Model(&models.Episode{}).Where("id = ?", id).Pluck("status", &statuses).Error
	if err != nil {
		return fmt.Errorf("checking episode status: %w", err)
	}
	if len(statuses) == 0 {
		return NewNotFoundError(id)
	}
	return fmt.Errorf("%w: episode %d is %s", ErrNotGenerating, id, statuses[0])
}

// UpsertProgress stores the latest listening position for a user and episode
func (r *Repository) UpsertProgress(ctx context.Context, progress *models.EpisodeProgress) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "episode_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"position_seconds", "completed", "completed_at", "updated_at"}),
	}).Create(progress).Error
	if err != nil {
		return fmt.Errorf("saving progress: %w", err)
	}
	return nil
}

// FailStale marks episodes stuck in generating since before cutoff as failed
func (r *Repository) FailStale(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Episode{}).
		Where("status = ? AND updated_at < ?", models.EpisodeStatusGenerating, cutoff).
		Updates(map[string]any{
			"status":        models.EpisodeStatusFailed,
			"error_message": message,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failing stale episodes: %w", result.Error)
	}
	return result.RowsAffected, nil
}
