package episodes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/killallgit/audiolingu-api/api/types"
	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/episodes"
	"github.com/killallgit/audiolingu-api/internal/services/fanout"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
	"github.com/killallgit/audiolingu-api/internal/services/quizzes"
	"github.com/killallgit/audiolingu-api/internal/testutil"
)

const quizJSON = `{"title":"La cocina","questions":[{"prompt":"¿Qué se cocina?","choices":["Paella","Sopa"],"correctIndex":0}]}`

type MockGeneration struct {
	mock.Mock
}

func (m *MockGeneration) EnqueueGeneration(ctx context.Context, userID uint) (*models.Job, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *MockGeneration) EnqueueDaily(ctx context.Context) (*fanout.BatchResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fanout.BatchResult), args.Error(1)
}

type quizWriter struct {
	out string
	err error
}

func (w quizWriter) Run(ctx context.Context, transcript string) (string, error) {
	return w.out, w.err
}

type fixture struct {
	db     *gorm.DB
	router *gin.Engine
	owner  *models.User
	other  *models.User
	gen    *MockGeneration
	store  *testutil.MemoryStore
}

// asUser stands in for the auth middleware
func asUser(id *uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(types.ContextUserID, *id)
		c.Next()
	}
}

func setup(t *testing.T, writer quizzes.Writer) (*fixture, *uint) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	f := &fixture{
		db:    db,
		owner: testutil.CreateUser(t, db, testutil.UserOptions{FirstName: "Owner"}),
		other: testutil.CreateUser(t, db, testutil.UserOptions{FirstName: "Other", NoProfile: true}),
		gen:   new(MockGeneration),
		store: testutil.NewMemoryStore(),
	}
	epService := episodes.NewService(episodes.NewRepository(db))
	deps := &types.Dependencies{
		Users:      profiles.NewService(db),
		Episodes:   epService,
		Quizzes:    quizzes.NewService(db, epService, writer, nil),
		Generation: f.gen,
		Store:      f.store,
	}

	caller := f.owner.ID
	f.router = gin.New()
	group := f.router.Group("/api/v1/episodes")
	group.Use(asUser(&caller))
	RegisterRoutes(group, deps)
	return f, &caller
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	f.router.ServeHTTP(w, req)
	return w
}

func TestPostGenerate(t *testing.T) {
	f, caller := setup(t, quizWriter{})
	job := &models.Job{Type: models.JobTypePodcastGeneration, Status: models.JobStatusPending}
	job.ID = 42
	f.gen.On("EnqueueGeneration", mock.Anything, f.owner.ID).Return(job, nil).Once()

	w := f.do(http.MethodPost, "/api/v1/episodes/generate", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp types.JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint(42), resp.JobID)
	assert.Equal(t, "pending", resp.JobStatus)

	// No learning profile yet
	*caller = f.other.ID
	w = f.do(http.MethodPost, "/api/v1/episodes/generate", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.gen.AssertExpectations(t)
}

func TestGetAllAndRecent(t *testing.T) {
	f, _ := setup(t, quizWriter{})
	for i := 0; i < 7; i++ {
		testutil.CreateEpisode(t, f.db, &models.Episode{UserID: f.owner.ID, Title: fmt.Sprintf("ep-%d", i), Status: models.EpisodeStatusReady})
	}
	testutil.CreateEpisode(t, f.db, &models.Episode{UserID: f.other.ID, Title: "not mine"})

	w := f.do(http.MethodGet, "/api/v1/episodes?limit=3&offset=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var page types.EpisodesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Count)
	assert.Equal(t, int64(7), page.Total)
	assert.Equal(t, 2, page.Offset)

	w = f.do(http.MethodGet, "/api/v1/episodes/recent", "")
	require.Equal(t, http.StatusOK, w.Code)
	var recent types.EpisodesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recent))
	assert.Equal(t, episodes.DefaultRecentLimit, recent.Count)
	for _, ep := range recent.Episodes {
		assert.NotEqual(t, "not mine", ep.Title)
	}
}

func TestGetByID(t *testing.T) {
	f, caller := setup(t, quizWriter{})
	_, err := f.store.Store(context.Background(), "audio/a.mp3", []byte("mp3"), "audio/mpeg")
	require.NoError(t, err)
	ep := testutil.CreateEpisode(t, f.db, &models.Episode{
		UserID:         f.owner.ID,
		Title:          "Mercado",
		Status:         models.EpisodeStatusReady,
		Transcript:     "Hola.",
		AudioKey:       "audio/a.mp3",
		WordAlignments: []byte(`[{"word":"Hola.","start":0,"end":0.5}]`),
	})
	path := fmt.Sprintf("/api/v1/episodes/%d", ep.ID)

	w := f.do(http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp types.SingleEpisodeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://media.test/audio/a.mp3", resp.Episode.AudioURL)
	assert.Equal(t, "Hola.", resp.Episode.Transcript)
	assert.Len(t, resp.Episode.WordAlignments, 1)

	tests := []struct {
		name     string
		caller   uint
		path     string
		expected int
	}{
		{name: "other user", caller: f.other.ID, path: path, expected: http.StatusForbidden},
		{name: "missing", caller: f.owner.ID, path: "/api/v1/episodes/9999", expected: http.StatusNotFound},
		{name: "bad id", caller: f.owner.ID, path: "/api/v1/episodes/abc", expected: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			*caller = tt.caller
			assert.Equal(t, tt.expected, f.do(http.MethodGet, tt.path, "").Code)
		})
	}
}

func TestPutFeedbackAndProgress(t *testing.T) {
	f, _ := setup(t, quizWriter{})
	dur := 30.0
	ready := testutil.CreateEpisode(t, f.db, &models.Episode{UserID: f.owner.ID, Status: models.EpisodeStatusReady, DurationSeconds: &dur})
	pending := testutil.CreateEpisode(t, f.db, &models.Episode{UserID: f.owner.ID, Status: models.EpisodeStatusGenerating})

	w := f.do(http.MethodPut, fmt.Sprintf("/api/v1/episodes/%d/feedback", ready.ID), `{"feedback":"good","comment":"more dialogue"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var ep types.SingleEpisodeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ep))
	assert.Equal(t, "good", ep.Episode.Feedback)
	assert.Equal(t, "more dialogue", ep.Episode.FeedbackComment)

	assert.Equal(t, http.StatusConflict, f.do(http.MethodPut, fmt.Sprintf("/api/v1/episodes/%d/feedback", pending.ID), `{"feedback":"good"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, fmt.Sprintf("/api/v1/episodes/%d/feedback", ready.ID), `{"feedback":"meh"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, fmt.Sprintf("/api/v1/episodes/%d/feedback", ready.ID), `{}`).Code)

	w = f.do(http.MethodPut, fmt.Sprintf("/api/v1/episodes/%d/progress", ready.ID), `{"positionSeconds":45,"completed":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	var p types.ProgressResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, 30.0, p.PositionSeconds)
	assert.True(t, p.Completed)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, fmt.Sprintf("/api/v1/episodes/%d/progress", ready.ID), `{"completed":true}`).Code)
}

func TestQuizRoutes(t *testing.T) {
	f, _ := setup(t, quizWriter{out: quizJSON})
	ep := testutil.CreateEpisode(t, f.db, &models.Episode{UserID: f.owner.ID, Status: models.EpisodeStatusReady, Transcript: "Hoy cocinamos paella."})
	empty := testutil.CreateEpisode(t, f.db, &models.Episode{UserID: f.owner.ID, Status: models.EpisodeStatusReady})
	path := fmt.Sprintf("/api/v1/episodes/%d/quiz", ep.ID)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, path, "").Code)

	w := f.do(http.MethodPost, path, "")
	require.Equal(t, http.StatusCreated, w.Code)
	var created types.QuizResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotNil(t, created.Quiz)
	assert.Equal(t, "La cocina", created.Quiz.Title)

	w = f.do(http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	var latest types.QuizResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &latest))
	assert.Equal(t, created.Quiz.PublicID, latest.Quiz.PublicID)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, fmt.Sprintf("/api/v1/episodes/%d/quiz", empty.ID), "").Code)
}

func TestPostQuiz_InvalidQuiz(t *testing.T) {
	f, _ := setup(t, quizWriter{out: `{"title":"x","questions":[]}`})
	ep := testutil.CreateEpisode(t, f.db, &models.Episode{UserID: f.owner.ID, Status: models.EpisodeStatusReady, Transcript: "Hola."})

	w := f.do(http.MethodPost, fmt.Sprintf("/api/v1/episodes/%d/quiz", ep.ID), "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var count int64
	require.NoError(t, f.db.Model(&models.Quiz{}).Count(&count).Error)
	assert.Zero(t, count)
}
