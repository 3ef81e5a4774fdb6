package models

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(All()...))
	return db
}

func TestNewQuizPublicID(t *testing.T) {
	pattern := regexp.MustCompile(`^quiz_[A-Za-z0-9_-]{16}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := NewQuizPublicID()
		require.NoError(t, err)
		assert.Len(t, id, 21)
		assert.Regexp(t, pattern, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestQuiz_BeforeCreate(t *testing.T) {
	db := setupTestDB(t)

	q := &Quiz{EpisodeID: 1, UserID: 1, Title: "Quiz"}
	require.NoError(t, db.Create(q).Error)
	assert.Len(t, q.PublicID, 21)

	fixed := &Quiz{EpisodeID: 1, UserID: 1, PublicID: "quiz_AAAAAAAAAAAAAAAA"}
	require.NoError(t, db.Create(fixed).Error)
	assert.Equal(t, "quiz_AAAAAAAAAAAAAAAA", fixed.PublicID)
}

func TestEpisode_Defaults(t *testing.T) {
	db := setupTestDB(t)

	ep := &Episode{UserID: 3, Language: "es", ProficiencyLevel: "B1"}
	require.NoError(t, db.Create(ep).Error)
	assert.Equal(t, EpisodeStatusDraft, ep.Status)
	assert.False(t, ep.HasFeedback())

	assert.True(t, EpisodeStatusReady.IsTerminal())
	assert.True(t, EpisodeStatusFailed.IsTerminal())
	assert.False(t, EpisodeStatusGenerating.IsTerminal())

	assert.True(t, FeedbackGood.Valid())
	assert.False(t, FeedbackRating("meh").Valid())
}

func TestJob_PayloadRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	job := &Job{
		Type:    JobTypePodcastGeneration,
		Payload: JobPayload{"user_id": uint(42), "trigger": "daily", "notify": true},
	}
	require.NoError(t, db.Create(job).Error)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.False(t, job.AvailableAt.IsZero())

	var loaded Job
	require.NoError(t, db.First(&loaded, job.ID).Error)

	userID, ok := loaded.GetPayloadUint("user_id")
	require.True(t, ok)
	assert.Equal(t, uint(42), userID)

	trigger, ok := loaded.GetPayloadString("trigger")
	require.True(t, ok)
	assert.Equal(t, "daily", trigger)
	assert.True(t, loaded.GetPayloadBool("notify"))
	assert.False(t, loaded.GetPayloadBool("missing"))
}

func TestJobPayload_Scan(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    JobPayload
		wantErr bool
	}{
		{name: "bytes", value: []byte(`{"a":1}`), want: JobPayload{"a": float64(1)}},
		{name: "string", value: `{"a":"b"}`, want: JobPayload{"a": "b"}},
		{name: "nil", value: nil, want: JobPayload{}},
		{name: "unsupported", value: 12, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p JobPayload
			err := p.Scan(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestJob_RetryDelay(t *testing.T) {
	base := time.Second
	tests := []struct {
		retries int
		want    time.Duration
	}{
		{retries: 0, want: time.Second},
		{retries: 1, want: time.Second},
		{retries: 2, want: 2 * time.Second},
		{retries: 3, want: 4 * time.Second},
	}
	for _, tt := range tests {
		j := &Job{RetryCount: tt.retries}
		assert.Equal(t, tt.want, j.RetryDelay(base))
	}
}

func TestJob_States(t *testing.T) {
	j := &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}
	assert.True(t, j.IsRetryable())
	assert.False(t, j.IsTerminal())

	j.Status = JobStatusPermanentlyFailed
	assert.True(t, j.IsTerminal())
	assert.False(t, j.IsRetryable())
}

func TestStructuredJobError(t *testing.T) {
	cause := errors.New("profile incomplete")
	err := NewValidationError("missing_language", "learning profile has no language", cause)

	assert.True(t, err.Permanent())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "profile incomplete", err.Details)

	assert.False(t, NewCapabilityError("tts_failed", "speech failed", nil).Permanent())
	assert.True(t, NewNotFoundError("no_user", "user gone", nil).Permanent())
}
