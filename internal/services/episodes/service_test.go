package episodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/alignment"
	"github.com/killallgit/audiolingu-api/internal/testutil"
)

type recordingScheduler struct {
	users []uint
	err   error
}

func (r *recordingScheduler) ScheduleFeedbackAnalysis(ctx context.Context, userID uint) error {
	r.users = append(r.users, userID)
	return r.err
}

func setup(t *testing.T, opts ...ServiceOption) (*Service, *gorm.DB, *models.User, *models.User) {
	db := testutil.DB(t)
	owner := testutil.CreateUser(t, db, testutil.UserOptions{FirstName: "Owner"})
	other := testutil.CreateUser(t, db, testutil.UserOptions{FirstName: "Other"})
	return NewService(NewRepository(db), opts...), db, owner, other
}

func TestService_GenerationSetters(t *testing.T) {
	svc, _, owner, _ := setup(t)
	ctx := context.Background()

	ep, err := svc.CreateDraft(ctx, owner.ID, "es", "B1", "podcast:1")
	require.NoError(t, err)
	assert.Equal(t, models.EpisodeStatusGenerating, ep.Status)
	assert.Equal(t, DefaultDraftTitle, ep.Title)

	require.NoError(t, svc.SetTranscript(ctx, ep.ID, "Hola. Adiós."))
	require.NoError(t, svc.SetTitleAndSummary(ctx, ep.ID, "Un saludo", "Resumen corto."))
	require.NoError(t, svc.SetCoverImage(ctx, ep.ID, "covers/x.png"))
	require.NoError(t, svc.SetAudio(ctx, ep.ID, "audio/x.mp3", `{"characters":[]}`, 12.5))
	require.NoError(t, svc.SetWordAlignments(ctx, ep.ID, []alignment.WordSpan{{Word: "Hola", Start: 0, End: 0.4}}))
	require.NoError(t, svc.SetSentenceAlignments(ctx, ep.ID, []alignment.SentenceSpan{}))
	require.NoError(t, svc.MarkReady(ctx, ep.ID))

	got, err := svc.Get(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EpisodeStatusReady, got.Status)
	assert.NotNil(t, got.PublishedAt)
	assert.Equal(t, "Un saludo", got.Title)
	assert.Equal(t, "audio/x.mp3", got.AudioKey)
	require.NotNil(t, got.DurationSeconds)
	assert.Equal(t, 12.5, *got.DurationSeconds)

	var words []alignment.WordSpan
	require.NoError(t, json.Unmarshal(got.WordAlignments, &words))
	assert.Equal(t, "Hola", words[0].Word)
	assert.JSONEq(t, `[]`, string(got.SentenceAlignments))
}

func TestService_MarkFailedKeepsPartialFields(t *testing.T) {
	svc, _, owner, _ := setup(t)
	ctx := context.Background()

	ep, err := svc.CreateDraft(ctx, owner.ID, "es", "B1", "podcast:2")
	require.NoError(t, err)
	require.NoError(t, svc.SetTranscript(ctx, ep.ID, "texto"))
	require.NoError(t, svc.MarkFailed(ctx, ep.ID, "  "))

	got, err := svc.Get(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EpisodeStatusFailed, got.Status)
	assert.Equal(t, "generation failed", got.ErrorMessage)
	assert.Equal(t, "texto", got.Transcript)
	assert.Nil(t, got.PublishedAt)
}

func TestService_SetterOnMissingEpisode(t *testing.T) {
	svc, _, _, _ := setup(t)
	err := svc.SetTranscript(context.Background(), 12345, "x")
	assert.True(t, IsNotFound(err))
}

func TestService_CreateDraftReusesRunKey(t *testing.T) {
	svc, db, owner, other := setup(t)
	ctx := context.Background()

	first, err := svc.CreateDraft(ctx, owner.ID, "es", "B1", "podcast:9")
	require.NoError(t, err)
	again, err := svc.CreateDraft(ctx, owner.ID, "es", "B1", "podcast:9")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&models.Episode{}).Where("run_key = ?", "podcast:9").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = svc.CreateDraft(ctx, other.ID, "es", "B1", "podcast:9")
	assert.True(t, errors.Is(err, ErrNotOwner))

	require.NoError(t, svc.MarkFailed(ctx, first.ID, "boom"))
	_, err = svc.CreateDraft(ctx, owner.ID, "es", "B1", "podcast:9")
	assert.True(t, errors.Is(err, ErrNotGenerating))
}

func TestService_FailedEpisodeStaysFailed(t *testing.T) {
	svc, db, owner, _ := setup(t)
	ctx := context.Background()

	ep, err := svc.CreateDraft(ctx, owner.ID, "es", "B1", "podcast:10")
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Episode{}).Where("id = ?", ep.ID).UpdateColumn("updated_at", time.Now().UTC().Add(-3*time.Hour)).Error)
	n, err := svc.FailStale(ctx, time.Now().UTC().Add(-2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// The slow run finishes after the sweep
	assert.True(t, errors.Is(svc.SetTranscript(ctx, ep.ID, "late"), ErrNotGenerating))
	assert.True(t, errors.Is(svc.MarkReady(ctx, ep.ID), ErrNotGenerating))
	assert.True(t, errors.Is(svc.MarkFailed(ctx, ep.ID, "other"), ErrNotGenerating))

	got, err := svc.Get(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EpisodeStatusFailed, got.Status)
	assert.Equal(t, "generation timed out", got.ErrorMessage)
	assert.Empty(t, got.Transcript)
	assert.Nil(t, got.PublishedAt)
}

func TestService_Ownership(t *testing.T) {
	sched := &recordingScheduler{}
	svc, db, owner, other := setup(t, WithFeedbackScheduler(sched))
	ctx := context.Background()
	ep := testutil.CreateEpisode(t, db, &models.Episode{UserID: owner.ID, Status: models.EpisodeStatusReady, Title: "Mine"})

	_, err := svc.GetForOwner(ctx, other.ID, ep.ID)
	assert.True(t, errors.Is(err, ErrNotOwner))

	_, err = svc.SetFeedback(ctx, other.ID, ep.ID, models.FeedbackBad, "nope")
	assert.True(t, errors.Is(err, ErrNotOwner))

	_, err = svc.SetProgress(ctx, other.ID, ep.ID, 3, false)
	assert.True(t, errors.Is(err, ErrNotOwner))

	// No mutation happened
	got, err := svc.Get(ctx, ep.ID)
	require.NoError(t, err)
	assert.Empty(t, got.FeedbackRating)
	assert.Empty(t, sched.users)

	var count int64
	require.NoError(t, db.Model(&models.EpisodeProgress{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestService_SetFeedback(t *testing.T) {
	sched := &recordingScheduler{err: fmt.Errorf("queue down")}
	svc, db, owner, _ := setup(t, WithFeedbackScheduler(sched))
	ctx := context.Background()
	ready := testutil.CreateEpisode(t, db, &models.Episode{UserID: owner.ID, Status: models.EpisodeStatusReady})
	generating := testutil.CreateEpisode(t, db, &models.Episode{UserID: owner.ID, Status: models.EpisodeStatusGenerating})

	ep, err := svc.SetFeedback(ctx, owner.ID, ready.ID, models.FeedbackGood, "  great pacing ")
	require.NoError(t, err)
	assert.Equal(t, "great pacing", ep.FeedbackComment)
	assert.Equal(t, []uint{owner.ID}, sched.users)

	_, err = svc.SetFeedback(ctx, owner.ID, generating.ID, models.FeedbackGood, "")
	assert.True(t, errors.Is(err, ErrNotReady))

	_, err = svc.SetFeedback(ctx, owner.ID, ready.ID, "meh", "")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = svc.SetFeedback(ctx, owner.ID, 999, models.FeedbackGood, "")
	assert.True(t, errors.Is(err, ErrEpisodeNotFound))
}

func TestService_SetProgress(t *testing.T) {
	svc, db, owner, _ := setup(t)
	ctx := context.Background()
	dur := 60.0
	ep := testutil.CreateEpisode(t, db, &models.Episode{UserID: owner.ID, Status: models.EpisodeStatusReady, DurationSeconds: &dur})

	_, err := svc.SetProgress(ctx, owner.ID, ep.ID, 10, false)
	require.NoError(t, err)
	p, err := svc.SetProgress(ctx, owner.ID, ep.ID, 90, true)
	require.NoError(t, err)
	assert.Equal(t, 60.0, p.PositionSeconds)

	var rows []models.EpisodeProgress
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Completed)
	assert.NotNil(t, rows[0].CompletedAt)

	_, err = svc.SetProgress(ctx, owner.ID, ep.ID, -1, false)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestService_ListAndRecent(t *testing.T) {
	svc, db, owner, other := setup(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		ep := &models.Episode{UserID: owner.ID, Title: fmt.Sprintf("ep-%02d", i)}
		ep.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		testutil.CreateEpisode(t, db, ep)
	}
	testutil.CreateEpisode(t, db, &models.Episode{UserID: other.ID})

	page, total, err := svc.List(ctx, owner.ID, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
	require.Len(t, page, 5)
	assert.Equal(t, "ep-04", page[0].Title)

	recent, err := svc.Recent(ctx, owner.ID, 0)
	require.NoError(t, err)
	require.Len(t, recent, DefaultRecentLimit)
	assert.Equal(t, "ep-24", recent[0].Title)

	recent, err = svc.Recent(ctx, owner.ID, 100)
	require.NoError(t, err)
	assert.Len(t, recent, MaxRecentLimit)
}

func TestService_FailStale(t *testing.T) {
	svc, db, owner, _ := setup(t)
	ctx := context.Background()
	stuck := testutil.CreateEpisode(t, db, &models.Episode{UserID: owner.ID, Status: models.EpisodeStatusGenerating})
	require.NoError(t, db.Model(&models.Episode{}).Where("id = ?", stuck.ID).UpdateColumn("updated_at", time.Now().UTC().Add(-3*time.Hour)).Error)
	fresh := testutil.CreateEpisode(t, db, &models.Episode{UserID: owner.ID, Status: models.EpisodeStatusGenerating})

	n, err := svc.FailStale(ctx, time.Now().UTC().Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := svc.Get(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EpisodeStatusFailed, got.Status)
	assert.Equal(t, "generation timed out", got.ErrorMessage)

	got, err = svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EpisodeStatusGenerating, got.Status)
}
