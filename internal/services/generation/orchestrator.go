package generation

import (
	"context"
	"errors"
	"time"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/events"
	"github.com/killallgit/audiolingu-api/internal/services/workflow"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// Orchestrator runs podcast generation for one job at a time. It is safe for
// concurrent use; each run has its own state and run key.
type Orchestrator struct {
	runner   *workflow.Runner[State]
	episodes EpisodeWriter
	events   events.Publisher
	log      *logger.Logger
}

func NewOrchestrator(deps Deps, store workflow.CheckpointStore, publisher events.Publisher, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	o := &Orchestrator{
		episodes: deps.Episodes,
		events:   publisher,
		log:      log.With("component", "generation"),
	}
	o.runner = workflow.NewRunner(Steps(deps), store, workflow.WithLogger(o.log)).OnStep(o.publishStep)
	return o
}

// Runner exposes the step runner for the Temporal activity
func (o *Orchestrator) Runner() *workflow.Runner[State] {
	return o.runner
}

// Run executes, or resumes, the run for jobID. On a fatal step failure the
// episode is marked failed and the returned error wraps *workflow.StepError.
func (o *Orchestrator) Run(ctx context.Context, jobID, userID uint) (*State, error) {
	state := &State{JobID: jobID, UserID: userID}
	runKey := RunKey(jobID)

	o.publish(ctx, events.Event{Type: events.TypeRunStarted, JobID: jobID, UserID: userID})
	started := time.Now()

	if err := o.runner.Run(ctx, runKey, state); err != nil {
		o.Fail(ctx, state, err)
		return state, err
	}

	o.log.Info("Episode ready",
		"job_id", jobID, "user_id", userID, "episode_id", state.EpisodeID,
		"cover", state.CoverGenerated, "duration_seconds", state.DurationSeconds,
		"elapsed", time.Since(started).String())
	o.publish(ctx, events.Event{Type: events.TypeEpisodeReady, JobID: jobID, UserID: userID, EpisodeID: state.EpisodeID})
	return state, nil
}

// Fail records a fatal run error on the episode and reports whether it did.
// Errors other than a step failure, and failures caused by a canceled
// context, leave the episode untouched so the run can resume later.
func (o *Orchestrator) Fail(ctx context.Context, state *State, err error) bool {
	var stepErr *workflow.StepError
	if !errors.As(err, &stepErr) || ctx.Err() != nil {
		return false
	}
	// Record the failure even when the run's context was canceled
	ctx = context.WithoutCancel(ctx)
	if state.EpisodeID != 0 {
		if markErr := o.episodes.MarkFailed(ctx, state.EpisodeID, stepErr.Err.Error()); markErr != nil {
			o.log.Error("Failed to mark episode failed", "episode_id", state.EpisodeID, "error", markErr)
		}
	}
	o.publish(ctx, events.Event{
		Type:      events.TypeEpisodeFailed,
		JobID:     state.JobID,
		UserID:    state.UserID,
		EpisodeID: state.EpisodeID,
		Step:      stepErr.Step,
		Error:     stepErr.Err.Error(),
	})
	return true
}

func (o *Orchestrator) publishStep(ctx context.Context, ev workflow.StepEvent, state *State) {
	var t events.Type
	switch ev.Outcome {
	case models.StepCompleted:
		t = events.TypeStepCompleted
	case models.StepSkipped:
		t = events.TypeStepSkipped
	default:
		return
	}
	out := events.Event{Type: t, JobID: state.JobID, UserID: state.UserID, EpisodeID: state.EpisodeID, Step: ev.Step}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	o.publish(ctx, out)
}

func (o *Orchestrator) publish(ctx context.Context, ev events.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := o.events.Publish(ctx, ev); err != nil {
		o.log.Warn("Failed to publish event", "type", ev.Type, "error", err)
	}
}
