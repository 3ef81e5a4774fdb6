package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/email"
	"github.com/killallgit/audiolingu-api/internal/services/episodes"
	"github.com/killallgit/audiolingu-api/internal/services/generation"
	"github.com/killallgit/audiolingu-api/internal/services/jobs"
	"github.com/killallgit/audiolingu-api/internal/services/llm"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
	"github.com/killallgit/audiolingu-api/internal/services/steps"
	"github.com/killallgit/audiolingu-api/internal/services/workflow"
	"github.com/killallgit/audiolingu-api/internal/testutil"
)

// MockPodcastRunner is a mock implementation of PodcastRunner
type MockPodcastRunner struct {
	mock.Mock
}

func (m *MockPodcastRunner) Run(ctx context.Context, jobID, userID uint) (*generation.State, error) {
	args := m.Called(ctx, jobID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*generation.State), args.Error(1)
}

// MockSender is a mock implementation of email.Sender
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg email.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func claim(t *testing.T, svc jobs.Service, jobType models.JobType, payload models.JobPayload) *models.Job {
	t.Helper()
	ctx := context.Background()
	_, err := svc.EnqueueJob(ctx, jobType, payload)
	require.NoError(t, err)
	job, err := svc.ClaimNextJob(ctx, "test", []models.JobType{jobType})
	require.NoError(t, err)
	return job
}

func TestGenerationProcessor(t *testing.T) {
	ctx := context.Background()

	t.Run("completes and queues the email", func(t *testing.T) {
		svc, _ := newJobService(t)
		job := claim(t, svc, models.JobTypePodcastGeneration, models.JobPayload{"user_id": 3, "trigger": "daily", "notify": true})

		runner := new(MockPodcastRunner)
		runner.On("Run", ctx, job.ID, uint(3)).Return(&generation.State{EpisodeID: 42, WordCount: 10}, nil)

		require.NoError(t, NewGenerationProcessor(svc, runner, nil).ProcessJob(ctx, job))
		runner.AssertExpectations(t)

		got, err := svc.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, got.Status)
		assert.Equal(t, float64(42), got.Result["episode_id"])

		mail, err := svc.ClaimNextJob(ctx, "mail", []models.JobType{models.JobTypeEmailNotification})
		require.NoError(t, err)
		userID, _ := mail.GetPayloadUint("user_id")
		episodeID, _ := mail.GetPayloadUint("episode_id")
		assert.Equal(t, uint(3), userID)
		assert.Equal(t, uint(42), episodeID)
	})

	t.Run("no email without notify", func(t *testing.T) {
		svc, _ := newJobService(t)
		job := claim(t, svc, models.JobTypePodcastGeneration, models.JobPayload{"user_id": 3, "notify": false})
		runner := new(MockPodcastRunner)
		runner.On("Run", ctx, job.ID, uint(3)).Return(&generation.State{EpisodeID: 1}, nil)

		require.NoError(t, NewGenerationProcessor(svc, runner, nil).ProcessJob(ctx, job))
		_, err := svc.ClaimNextJob(ctx, "mail", []models.JobType{models.JobTypeEmailNotification})
		assert.True(t, errors.Is(err, jobs.ErrNoJobsAvailable))
	})

	t.Run("fatal step failure is permanent", func(t *testing.T) {
		svc, _ := newJobService(t)
		job := claim(t, svc, models.JobTypePodcastGeneration, models.JobPayload{"user_id": 3})
		runner := new(MockPodcastRunner)
		stepErr := &workflow.StepError{RunKey: "podcast:1", Index: 5, Step: generation.StepSynthesizeSpeech, Err: errors.New("quota")}
		runner.On("Run", ctx, job.ID, uint(3)).Return(&generation.State{}, stepErr)

		err := NewGenerationProcessor(svc, runner, nil).ProcessJob(ctx, job)
		var structured *models.StructuredJobError
		require.True(t, errors.As(err, &structured))
		assert.Equal(t, models.ErrorTypeRunFailed, structured.Type)
		assert.True(t, structured.Permanent())
	})

	t.Run("other failures are retried", func(t *testing.T) {
		svc, _ := newJobService(t)
		job := claim(t, svc, models.JobTypePodcastGeneration, models.JobPayload{"user_id": 3})
		runner := new(MockPodcastRunner)
		runner.On("Run", ctx, job.ID, uint(3)).Return(nil, errors.New("database is locked"))

		err := NewGenerationProcessor(svc, runner, nil).ProcessJob(ctx, job)
		var structured *models.StructuredJobError
		require.True(t, errors.As(err, &structured))
		assert.False(t, structured.Permanent())
	})
}

func TestEmailProcessor(t *testing.T) {
	ctx := context.Background()

	t.Run("sends to the first name", func(t *testing.T) {
		svc, db := newJobService(t)
		user := testutil.CreateUser(t, db, testutil.UserOptions{Email: "mia@example.com", FirstName: "Mia"})
		ep := testutil.CreateEpisode(t, db, &models.Episode{UserID: user.ID, Title: "Un paseo", Status: models.EpisodeStatusReady})
		job := claim(t, svc, models.JobTypeEmailNotification, models.JobPayload{"user_id": user.ID, "episode_id": ep.ID})

		sender := new(MockSender)
		sender.On("Send", ctx, mock.MatchedBy(func(m email.Message) bool {
			return m.To == "mia@example.com" && m.Subject == email.DailyEpisodeSubject
		})).Return("msg-1", nil)

		proc := NewEmailProcessor(svc, profiles.NewService(db), episodes.NewService(episodes.NewRepository(db)), sender, "https://app.test", nil)
		require.NoError(t, proc.ProcessJob(ctx, job))
		sender.AssertExpectations(t)

		msg := sender.Calls[0].Arguments.Get(1).(email.Message)
		assert.Contains(t, msg.HTML, "Hi Mia")
		assert.Contains(t, msg.HTML, "Un paseo")

		got, err := svc.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, "msg-1", got.Result["message_id"])
	})

	t.Run("send failure is retryable", func(t *testing.T) {
		svc, db := newJobService(t)
		user := testutil.CreateUser(t, db, testutil.UserOptions{Email: "x@example.com", FirstName: "X"})
		ep := testutil.CreateEpisode(t, db, &models.Episode{UserID: user.ID})
		job := claim(t, svc, models.JobTypeEmailNotification, models.JobPayload{"user_id": user.ID, "episode_id": ep.ID})

		sender := new(MockSender)
		sender.On("Send", ctx, mock.Anything).Return("", errors.New("503"))

		err := NewEmailProcessor(svc, profiles.NewService(db), episodes.NewService(episodes.NewRepository(db)), sender, "", nil).ProcessJob(ctx, job)
		var structured *models.StructuredJobError
		require.True(t, errors.As(err, &structured))
		assert.Equal(t, models.ErrorTypeCapability, structured.Type)
		assert.False(t, structured.Permanent())
	})

	t.Run("missing user is permanent", func(t *testing.T) {
		svc, db := newJobService(t)
		job := claim(t, svc, models.JobTypeEmailNotification, models.JobPayload{"user_id": 999, "episode_id": 1})
		sender := new(MockSender)

		err := NewEmailProcessor(svc, profiles.NewService(db), episodes.NewService(episodes.NewRepository(db)), sender, "", nil).ProcessJob(ctx, job)
		var structured *models.StructuredJobError
		require.True(t, errors.As(err, &structured))
		assert.Equal(t, models.ErrorTypeNotFound, structured.Type)
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})
}

func TestFeedbackProcessor(t *testing.T) {
	ctx := context.Background()
	svc, db := newJobService(t)
	user := testutil.CreateUser(t, db, testutil.UserOptions{FirstName: "Rae", Language: "it", Level: "B2"})
	testutil.CreateEpisode(t, db, &models.Episode{UserID: user.ID, Title: "Roma", Summary: "Storia", FeedbackRating: models.FeedbackBad, FeedbackComment: "too fast"})

	gen := &testutil.FakeLLM{Respond: func(req llm.Request) (string, error) { return "  Speak more slowly.  ", nil }}
	source := profiles.NewService(db)
	proc := NewFeedbackProcessor(svc, source, steps.NewFeedbackAnalysisStep(gen), 0, nil)

	job := claim(t, svc, models.JobTypeFeedbackAnalysis, models.JobPayload{"user_id": user.ID})
	require.NoError(t, proc.ProcessJob(ctx, job))

	snap, err := source.LoadSnapshot(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Speak more slowly.", snap.InternalPrompt)
	require.Len(t, gen.Requests(), 1)

	got, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, true, got.Result["updated"])
	assert.Equal(t, float64(1), got.Result["feedback_count"])
}
