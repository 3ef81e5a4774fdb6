package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/episodes"
	"github.com/killallgit/audiolingu-api/internal/services/jobs"
	"github.com/killallgit/audiolingu-api/internal/services/workflow"
	"github.com/killallgit/audiolingu-api/internal/testutil"
)

// MockJobPruner is a mock implementation of JobPruner
type MockJobPruner struct {
	mock.Mock
}

func (m *MockJobPruner) CleanupOldJobs(ctx context.Context, retention time.Duration) (int64, error) {
	args := m.Called(ctx, retention)
	return args.Get(0).(int64), args.Error(1)
}

func TestService_RunOnce(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, testutil.UserOptions{FirstName: "Ivy"})
	old := time.Now().UTC().Add(-10 * 24 * time.Hour)

	stuck := testutil.CreateEpisode(t, db, &models.Episode{UserID: user.ID, Status: models.EpisodeStatusGenerating})
	require.NoError(t, db.Model(&models.Episode{}).Where("id = ?", stuck.ID).UpdateColumn("updated_at", old).Error)

	jobService := jobs.NewService(jobs.NewRepository(db))
	done, err := jobService.EnqueueJob(ctx, models.JobTypeEmailNotification, models.JobPayload{"user_id": user.ID})
	require.NoError(t, err)
	claimed, err := jobService.ClaimNextJob(ctx, "w", []models.JobType{models.JobTypeEmailNotification})
	require.NoError(t, err)
	require.NoError(t, jobService.CompleteJob(ctx, claimed.ID, nil))
	require.NoError(t, db.Model(&models.Job{}).Where("id = ?", done.ID).UpdateColumn("updated_at", old).Error)
	_, err = jobService.EnqueueJob(ctx, models.JobTypeEmailNotification, models.JobPayload{"user_id": user.ID})
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.StepCheckpoint{RunKey: "podcast:1", StepIndex: 0, StepName: "create_draft", Outcome: models.StepCompleted, CompletedAt: old}).Error)
	require.NoError(t, db.Create(&models.StepCheckpoint{RunKey: "podcast:2", StepIndex: 0, StepName: "create_draft", Outcome: models.StepCompleted, CompletedAt: time.Now().UTC()}).Error)

	svc := NewService(jobService, episodes.NewService(episodes.NewRepository(db)), workflow.NewGormCheckpointStore(db), Config{}, nil)
	report := svc.RunOnce(ctx)
	assert.Equal(t, Report{JobsDeleted: 1, EpisodesFailed: 1, CheckpointsDeleted: 1}, report)

	var ep models.Episode
	require.NoError(t, db.First(&ep, stuck.ID).Error)
	assert.Equal(t, models.EpisodeStatusFailed, ep.Status)

	var jobsLeft int64
	require.NoError(t, db.Model(&models.Job{}).Count(&jobsLeft).Error)
	assert.Equal(t, int64(1), jobsLeft)
}

func TestService_RunOnceContinuesAfterError(t *testing.T) {
	pruner := new(MockJobPruner)
	pruner.On("CleanupOldJobs", mock.Anything, 48*time.Hour).Return(int64(0), errors.New("locked"))

	db := testutil.DB(t)
	svc := NewService(pruner, nil, workflow.NewGormCheckpointStore(db), Config{JobRetention: 48 * time.Hour}, nil)
	report := svc.RunOnce(context.Background())

	pruner.AssertExpectations(t)
	assert.Zero(t, report.CheckpointsDeleted)
}
