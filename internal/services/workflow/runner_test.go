package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/testutil"
)

type counterState struct {
	Trail []string `json:"trail"`
	Value int      `json:"value"`
}

func appendStep(name string, fatal bool, err error) Step[counterState] {
	return Step[counterState]{
		Name:  name,
		Fatal: fatal,
		Run: func(ctx context.Context, s *counterState) error {
			if err != nil {
				return err
			}
			s.Trail = append(s.Trail, name)
			s.Value++
			return nil
		},
	}
}

func TestRunner_RunsInOrder(t *testing.T) {
	store := NewGormCheckpointStore(testutil.DB(t))
	var events []StepEvent
	r := NewRunner([]Step[counterState]{
		appendStep("a", true, nil),
		appendStep("b", true, nil),
		appendStep("c", true, nil),
	}, store).OnStep(func(ctx context.Context, ev StepEvent, s *counterState) { events = append(events, ev) })

	var st counterState
	require.NoError(t, r.Run(context.Background(), "run-1", &st))
	assert.Equal(t, []string{"a", "b", "c"}, st.Trail)
	assert.Equal(t, []string{"a", "b", "c"}, r.Steps())
	require.Len(t, events, 3)
	assert.Equal(t, models.StepCompleted, events[2].Outcome)

	cp, err := store.Latest(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, cp.StepIndex)
	assert.Equal(t, "c", cp.StepName)
}

func TestRunner_NonFatalFailureContinues(t *testing.T) {
	store := NewGormCheckpointStore(testutil.DB(t))
	r := NewRunner([]Step[counterState]{
		appendStep("a", true, nil),
		appendStep("optional", false, errors.New("no image")),
		appendStep("c", true, nil),
	}, store)

	var st counterState
	require.NoError(t, r.Run(context.Background(), "run-2", &st))
	assert.Equal(t, []string{"a", "c"}, st.Trail)

	var skipped models.StepCheckpoint
	require.NoError(t, store.db.Where("run_key = ? AND step_index = 1", "run-2").First(&skipped).Error)
	assert.Equal(t, models.StepSkipped, skipped.Outcome)
	assert.Equal(t, "no image", skipped.Error)
}

func TestRunner_FatalFailureStops(t *testing.T) {
	store := NewGormCheckpointStore(testutil.DB(t))
	boom := errors.New("tts down")
	r := NewRunner([]Step[counterState]{
		appendStep("a", true, nil),
		appendStep("speech", true, boom),
		appendStep("align", true, nil),
	}, store)

	var st counterState
	err := r.Run(context.Background(), "run-3", &st)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "speech", stepErr.Step)
	assert.Equal(t, 1, stepErr.Index)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, st.Trail)

	cp, err := store.Latest(context.Background(), "run-3")
	require.NoError(t, err)
	assert.Equal(t, 0, cp.StepIndex)
}

func TestRunner_ResumesFromCheckpoint(t *testing.T) {
	store := NewGormCheckpointStore(testutil.DB(t))
	ctx := context.Background()
	calls := map[string]int{}
	counted := func(name string) Step[counterState] {
		return Step[counterState]{Name: name, Fatal: true, Run: func(ctx context.Context, s *counterState) error {
			calls[name]++
			s.Trail = append(s.Trail, name)
			return nil
		}}
	}
	r := NewRunner([]Step[counterState]{counted("a"), counted("b"), counted("c")}, store)

	// Simulate a crash after step 0
	var first counterState
	require.NoError(t, r.Advance(ctx, "run-4", 0, &first))

	var resumed counterState
	require.NoError(t, r.Run(ctx, "run-4", &resumed))
	assert.Equal(t, []string{"a", "b", "c"}, resumed.Trail)
	assert.Equal(t, 1, calls["a"])
	assert.Equal(t, 1, calls["b"])

	// A finished run does nothing more
	var again counterState
	require.NoError(t, r.Run(ctx, "run-4", &again))
	assert.Equal(t, 1, calls["c"])

	require.NoError(t, r.Forget(ctx, "run-4"))
	next, err := r.Resume(ctx, "run-4", &again)
	require.NoError(t, err)
	assert.Zero(t, next)
}

func TestRunner_AdvanceOutOfRange(t *testing.T) {
	r := NewRunner([]Step[counterState]{appendStep("a", true, nil)}, NewGormCheckpointStore(testutil.DB(t)))
	var st counterState
	assert.ErrorIs(t, r.Advance(context.Background(), "x", 3, &st), ErrStepIndex)
}

func TestGormCheckpointStore_DeleteBefore(t *testing.T) {
	store := NewGormCheckpointStore(testutil.DB(t))
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, store.Save(ctx, &models.StepCheckpoint{RunKey: "old", StepIndex: 0, StepName: "a", Outcome: models.StepCompleted, CompletedAt: old}))
	require.NoError(t, store.Save(ctx, &models.StepCheckpoint{RunKey: "old", StepIndex: 1, StepName: "b", Outcome: models.StepCompleted, CompletedAt: old}))
	require.NoError(t, store.Save(ctx, &models.StepCheckpoint{RunKey: "new", StepIndex: 0, StepName: "a", Outcome: models.StepCompleted}))

	n, err := store.DeleteBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	cp, err := store.Latest(ctx, "new")
	require.NoError(t, err)
	assert.NotNil(t, cp)
	cp, err = store.Latest(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, cp)
}
