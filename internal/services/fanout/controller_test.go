package fanout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/jobs"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
	"github.com/killallgit/audiolingu-api/internal/testutil"
)

func setup(t *testing.T) (*Controller, jobs.Service, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	svc := jobs.NewService(jobs.NewRepository(db))
	return NewController(svc, profiles.NewService(db), nil), svc, db
}

func generationJobs(t *testing.T, db *gorm.DB) []models.Job {
	t.Helper()
	var out []models.Job
	require.NoError(t, db.Where("type = ?", models.JobTypePodcastGeneration).Order("id").Find(&out).Error)
	return out
}

func TestController_EnqueueDaily(t *testing.T) {
	c, _, db := setup(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, db, testutil.UserOptions{FirstName: "A", DailyEpisodes: true})
	b := testutil.CreateUser(t, db, testutil.UserOptions{FirstName: "B", DailyEpisodes: true, EmailOptOut: true})
	testutil.CreateUser(t, db, testutil.UserOptions{FirstName: "C"})

	res, err := c.EnqueueDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Eligible)
	assert.Equal(t, 1, res.Enqueued)
	assert.Zero(t, res.Skipped)

	queued := generationJobs(t, db)
	require.Len(t, queued, 1)
	notify := map[uint]bool{}
	for _, j := range queued {
		id, ok := j.GetPayloadUint(models.PayloadUserID)
		require.True(t, ok)
		trigger, _ := j.GetPayloadString(models.PayloadTrigger)
		assert.Equal(t, models.TriggerDaily, trigger)
		notify[id] = j.GetPayloadBool(models.PayloadNotify)
	}
	assert.Equal(t, map[uint]bool{a.ID: true}, notify)
	assert.NotContains(t, notify, b.ID)

	// Opting out now does not change the queued payload
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", a.ID).Update("email_opt_out", true).Error)
	assert.True(t, generationJobs(t, db)[0].GetPayloadBool(models.PayloadNotify))

	// A second batch while the first is still queued adds nothing
	// A second batch while the first is still queued adds nothing
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", a.ID).Update("email_opt_out", false).Error)
	res, err = c.EnqueueDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Enqueued)
	assert.Len(t, generationJobs(t, db), 1)
}

func TestController_EnqueueForUsers(t *testing.T) {
	c, _, db := setup(t)
	u := testutil.CreateUser(t, db, testutil.UserOptions{FirstName: "U"})

	res, err := c.EnqueueForUsers(context.Background(), []uint{u.ID, u.ID, 404})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Eligible)
	assert.Equal(t, 1, res.Enqueued)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, res.JobIDs, 1)
}

func TestController_EnqueueGeneration(t *testing.T) {
	c, svc, db := setup(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, testutil.UserOptions{FirstName: "U"})

	first, err := c.EnqueueGeneration(ctx, u.ID)
	require.NoError(t, err)
	trigger, _ := first.GetPayloadString(models.PayloadTrigger)
	assert.Equal(t, models.TriggerManual, trigger)
	assert.False(t, first.GetPayloadBool(models.PayloadNotify))

	again, err := c.EnqueueGeneration(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	claimed, err := svc.ClaimNextJob(ctx, "w", []models.JobType{models.JobTypePodcastGeneration})
	require.NoError(t, err)
	require.NoError(t, svc.CompleteJob(ctx, claimed.ID, nil))

	third, err := c.EnqueueGeneration(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestController_ScheduleFeedbackAnalysis(t *testing.T) {
	c, _, db := setup(t)
	ctx := context.Background()
	require.NoError(t, c.ScheduleFeedbackAnalysis(ctx, 7))
	require.NoError(t, c.ScheduleFeedbackAnalysis(ctx, 7))
	require.NoError(t, c.ScheduleFeedbackAnalysis(ctx, 8))

	var n int64
	require.NoError(t, db.Model(&models.Job{}).Where("type = ?", models.JobTypeFeedbackAnalysis).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

type countingBatcher struct {
	calls atomic.Int32
	err   error
}

func (b *countingBatcher) EnqueueDaily(ctx context.Context) (*BatchResult, error) {
	b.calls.Add(1)
	if b.err != nil {
		return nil, b.err
	}
	return &BatchResult{}, nil
}

func TestScheduler_RunDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 5, 30, 0, 0, time.UTC)
	batcher := &countingBatcher{}
	s := NewScheduler(batcher, 6, nil, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	assert.False(t, s.RunDue(ctx), "before the hour")

	now = now.Add(time.Hour)
	assert.True(t, s.RunDue(ctx))
	assert.False(t, s.RunDue(ctx), "once per day")

	now = now.Add(20 * time.Hour)
	assert.True(t, s.RunDue(ctx), "next day")
	assert.Equal(t, int32(2), batcher.calls.Load())
}

func TestScheduler_RetriesFailedBatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	batcher := &countingBatcher{err: errors.New("db down")}
	s := NewScheduler(batcher, 6, nil, WithClock(func() time.Time { return now }))

	assert.False(t, s.RunDue(context.Background()))
	batcher.err = nil
	assert.True(t, s.RunDue(context.Background()))
	assert.Equal(t, int32(2), batcher.calls.Load())
}

func TestScheduler_StartStop(t *testing.T) {
	batcher := &countingBatcher{}
	s := NewScheduler(batcher, 0, nil, WithCheckInterval(5*time.Millisecond))
	s.Start(context.Background())
	require.Eventually(t, func() bool { return batcher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	assert.Equal(t, int32(1), batcher.calls.Load())
}
