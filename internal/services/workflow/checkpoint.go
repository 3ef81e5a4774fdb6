package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/killallgit/audiolingu-api/internal/models"
)

// CheckpointStore persists the state of a run after each step
type CheckpointStore interface {
	// Latest returns the highest finished step of a run, or nil
	Latest(ctx context.Context, runKey string) (*models.StepCheckpoint, error)
	Save(ctx context.Context, cp *models.StepCheckpoint) error
	Delete(ctx context.Context, runKey string) error
}

// GormCheckpointStore keeps checkpoints in the step_checkpoints table
type GormCheckpointStore struct {
	db *gorm.DB
}

var _ CheckpointStore = (*GormCheckpointStore)(nil)

func NewGormCheckpointStore(db *gorm.DB) *GormCheckpointStore {
	return &GormCheckpointStore{db: db}
}

func (s *GormCheckpointStore) Latest(ctx context.Context, runKey string) (*models.StepCheckpoint, error) {
	var cp models.StepCheckpoint
	err := s.db.WithContext(ctx).
		Where("run_key = ?", runKey).
		Order("step_index DESC").
		First(&cp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	return &cp, nil
}

// Save upserts on (run_key, step_index) so replaying a step overwrites it
func (s *GormCheckpointStore) Save(ctx context.Context, cp *models.StepCheckpoint) error {
	if cp.CompletedAt.IsZero() {
		cp.CompletedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_key"}, {Name: "step_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"step_name", "outcome", "state", "error", "completed_at"}),
	}).Create(cp).Error
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

func (s *GormCheckpointStore) Delete(ctx context.Context, runKey string) error {
	if err := s.db.WithContext(ctx).Where("run_key = ?", runKey).Delete(&models.StepCheckpoint{}).Error; err != nil {
		return fmt.Errorf("deleting checkpoints: %w", err)
	}
	return nil
}

// DeleteBefore removes checkpoints of runs whose last step finished before cutoff
func (s *GormCheckpointStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	stale := s.db.Model(&models.StepCheckpoint{}).
		Select("run_key").
		Group("run_key").
		Having("MAX(completed_at) < ?", cutoff)
	result := s.db.WithContext(ctx).Where("run_key IN (?)", stale).Delete(&models.StepCheckpoint{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting old checkpoints: %w", result.Error)
	}
	return result.RowsAffected, nil
}
