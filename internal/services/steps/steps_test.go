package steps

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/killallgit/audiolingu-api/internal/services/llm"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
	"github.com/killallgit/audiolingu-api/internal/testutil"
)

// MockProfileSource is a mock implementation of ProfileSource
type MockProfileSource struct {
	mock.Mock
}

func (m *MockProfileSource) LoadSnapshot(ctx context.Context, userID uint) (*profiles.Snapshot, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*profiles.Snapshot), args.Error(1)
}

func (m *MockProfileSource) PastSummaries(ctx context.Context, userID uint, limit int) ([]profiles.EpisodeSummary, error) {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).([]profiles.EpisodeSummary), args.Error(1)
}

func TestScriptStep_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("builds one thread with profile and history", func(t *testing.T) {
		source := new(MockProfileSource)
		source.On("LoadSnapshot", ctx, uint(7)).Return(&profiles.Snapshot{
			UserID: 7, TargetLanguage: "fr", ProficiencyLevel: "A2", EpisodeDuration: 10,
			Interests: []string{"cooking", "jazz"}, InternalPrompt: "Slower pacing.",
		}, nil)
		source.On("PastSummaries", ctx, uint(7), profiles.DefaultPastSummaries).Return([]profiles.EpisodeSummary{
			{Title: "Le pain", Summary: "Une histoire   du pain."},
		}, nil)
		gen := &testutil.FakeLLM{Respond: func(llm.Request) (string, error) { return "  Bonjour à tous.  ", nil }}

		out, err := NewScriptStep(gen, source, 0).Run(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "Bonjour à tous.", out)

		reqs := gen.Requests()
		require.Len(t, reqs, 1)
		assert.Contains(t, reqs[0].Instructions, "Slower pacing.")
		require.Len(t, reqs[0].Messages, 2)
		assert.Contains(t, reqs[0].Messages[0].Content, "French (fr)")
		assert.Contains(t, reqs[0].Messages[0].Content, "Level: A2")
		assert.Contains(t, reqs[0].Messages[0].Content, "cooking, jazz")
		assert.Contains(t, reqs[0].Messages[1].Content, "1. Le pain: Une histoire du pain.")
		assert.NotEmpty(t, reqs[0].Prompt)
		source.AssertExpectations(t)
	})

	t.Run("clamps the history limit", func(t *testing.T) {
		source := new(MockProfileSource)
		source.On("LoadSnapshot", ctx, uint(1)).Return(&profiles.Snapshot{TargetLanguage: "es", ProficiencyLevel: "B1"}, nil)
		source.On("PastSummaries", ctx, uint(1), profiles.MaxPastSummaries).Return([]profiles.EpisodeSummary{}, nil)
		gen := &testutil.FakeLLM{}

		_, err := NewScriptStep(gen, source, 500).Run(ctx, 1)
		require.NoError(t, err)
		assert.Contains(t, gen.Requests()[0].Messages[1].Content, "none yet")
		source.AssertExpectations(t)
	})

	t.Run("rejects an incomplete profile without generating", func(t *testing.T) {
		source := new(MockProfileSource)
		source.On("LoadSnapshot", ctx, uint(2)).Return(&profiles.Snapshot{ProficiencyLevel: "B1"}, nil)
		gen := &testutil.FakeLLM{}

		_, err := NewScriptStep(gen, source, 10).Run(ctx, 2)
		assert.True(t, errors.Is(err, profiles.ErrProfileIncomplete))
		assert.Empty(t, gen.Requests())
		source.AssertNotCalled(t, "PastSummaries", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("empty output is an error", func(t *testing.T) {
		source := new(MockProfileSource)
		source.On("LoadSnapshot", ctx, uint(3)).Return(&profiles.Snapshot{TargetLanguage: "de", ProficiencyLevel: "C1"}, nil)
		source.On("PastSummaries", ctx, uint(3), 10).Return([]profiles.EpisodeSummary{}, nil)
		gen := &testutil.FakeLLM{Respond: func(llm.Request) (string, error) { return " \n ", nil }}

		_, err := NewScriptStep(gen, source, 10).Run(ctx, 3)
		assert.True(t, errors.Is(err, ErrEmptyOutput))
	})
}

func TestTextSteps(t *testing.T) {
	ctx := context.Background()
	gen := &testutil.FakeLLM{Respond: func(req llm.Request) (string, error) {
		return "  Un   día\n en  el mercado ", nil
	}}

	title, err := NewTitleStep(gen).Run(ctx, "Hola.")
	require.NoError(t, err)
	assert.Equal(t, "Un día en el mercado", title)

	summary, err := NewSummaryStep(gen).Run(ctx, "Hola.")
	require.NoError(t, err)
	assert.Equal(t, "Un día en el mercado", summary)

	prompt, err := NewImagePromptStep(gen).Run(ctx, "Hola.")
	require.NoError(t, err)
	assert.Equal(t, "Un   día\n en  el mercado", prompt)

	reqs := gen.Requests()
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		assert.True(t, strings.HasSuffix(r.Prompt, "Script:\nHola."))
		assert.Empty(t, r.Messages)
	}

	_, err = NewTitleStep(gen).Run(ctx, "   ")
	assert.Error(t, err)
	assert.Len(t, gen.Requests(), 3)
}

func TestTextSteps_PropagateErrors(t *testing.T) {
	upstream := errors.New("rate limited")
	gen := &testutil.FakeLLM{Respond: func(llm.Request) (string, error) { return "", upstream }}

	_, err := NewSummaryStep(gen).Run(context.Background(), "texto")
	assert.ErrorIs(t, err, upstream)

	_, err = NewQuizStep(gen).Run(context.Background(), "texto")
	assert.ErrorIs(t, err, upstream)
}

func TestFeedbackAnalysisStep(t *testing.T) {
	ctx := context.Background()
	snap := &profiles.Snapshot{TargetLanguage: "it", ProficiencyLevel: "B2", EpisodeDuration: 5, InternalPrompt: "Old guidance."}

	t.Run("no feedback keeps current guidance", func(t *testing.T) {
		gen := &testutil.FakeLLM{}
		out, err := NewFeedbackAnalysisStep(gen).Run(ctx, FeedbackInput{Snapshot: snap})
		require.NoError(t, err)
		assert.Equal(t, "Old guidance.", out)
		assert.Empty(t, gen.Requests())
	})

	t.Run("sends ratings and comments", func(t *testing.T) {
		gen := &testutil.FakeLLM{Respond: func(llm.Request) (string, error) { return "Use more dialogue.", nil }}
		dur := 312.0
		out, err := NewFeedbackAnalysisStep(gen).Run(ctx, FeedbackInput{
			Snapshot: snap,
			Feedback: []profiles.FeedbackEntry{
				{Title: "Roma", Summary: "Storia", Rating: "good", Comment: "loved it", DurationSeconds: &dur},
				{Title: "Calcio", Summary: "Sport", Rating: "bad"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "Use more dialogue.", out)

		prompt := gen.Requests()[0].Prompt
		assert.Contains(t, prompt, "Italian")
		assert.Contains(t, prompt, "Old guidance.")
		assert.Contains(t, prompt, "1. [good] Roma: Storia (312 seconds)")
		assert.Contains(t, prompt, "Comment: loved it")
		assert.Contains(t, prompt, "2. [bad] Calcio: Sport")
	})

	t.Run("requires a snapshot", func(t *testing.T) {
		_, err := NewFeedbackAnalysisStep(&testutil.FakeLLM{}).Run(ctx, FeedbackInput{})
		assert.Error(t, err)
	})
}
