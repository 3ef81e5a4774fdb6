package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	wf "github.com/killallgit/audiolingu-api/internal/services/workflow"
)

const (
	WorkflowName    = "PodcastGeneration"
	ActivityRunStep = "RunPodcastStep"

	stepErrorType = "PodcastStepFailed"
)

// RunInput starts a podcast workflow
type RunInput struct {
	JobID  uint `json:"job_id"`
	UserID uint `json:"user_id"`
}

// StepInput asks the activity to run one step over State
type StepInput struct {
	Index int   `json:"index"`
	State State `json:"state"`
}

// WorkflowOptions tunes the activity calls of the workflow
type WorkflowOptions struct {
	StepTimeout time.Duration
}

// PodcastWorkflow runs each declared step as one activity and threads the
// state through workflow history. Step order is fixed by StepNames.
func PodcastWorkflow(ctx workflow.Context, in RunInput, opts WorkflowOptions) (State, error) {
	timeout := opts.StepTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{stepErrorType},
		},
	})

	state := State{JobID: in.JobID, UserID: in.UserID}
	for i := range StepNames {
		var next State
		if err := workflow.ExecuteActivity(ctx, ActivityRunStep, StepInput{Index: i, State: state}).Get(ctx, &next); err != nil {
			return state, err
		}
		state = next
	}
	return state, nil
}

// Activities exposes the orchestrator's steps to a Temporal worker
type Activities struct {
	Orchestrator *Orchestrator
}

// RunPodcastStep runs one step and checkpoints it. A fatal step failure marks
// the episode failed and is not retried.
func (a *Activities) RunPodcastStep(ctx context.Context, in StepInput) (State, error) {
	state := in.State
	runKey := RunKey(state.JobID)
	if err := a.Orchestrator.Runner().Advance(ctx, runKey, in.Index, &state); err != nil {
		if a.Orchestrator.Fail(ctx, &state, err) {
			return state, temporal.NewNonRetryableApplicationError(err.Error(), stepErrorType, errors.Unwrap(err))
		}
		return state, err
	}
	return state, nil
}

// TemporalRunner starts podcast runs on a Temporal cluster and waits for them
type TemporalRunner struct {
	client    client.Client
	taskQueue string
	opts      WorkflowOptions
}

func NewTemporalRunner(c client.Client, taskQueue string, opts WorkflowOptions) *TemporalRunner {
	return &TemporalRunner{client: c, taskQueue: taskQueue, opts: opts}
}

// Run starts the workflow with the run key as its id, so a retried job
// attaches to the execution already in flight.
func (r *TemporalRunner) Run(ctx context.Context, jobID, userID uint) (*State, error) {
	run, err := r.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        RunKey(jobID),
		TaskQueue: r.taskQueue,
	}, WorkflowName, RunInput{JobID: jobID, UserID: userID}, r.opts)
	if err != nil {
		return nil, fmt.Errorf("starting podcast workflow: %w", err)
	}
	var state State
	if err := run.Get(ctx, &state); err != nil {
		return nil, fmt.Errorf("podcast workflow %s: %w", run.GetID(), err)
	}
	return &state, nil
}

// IsStepFailure reports whether err is a fatal step failure from either
// backend
func IsStepFailure(err error) bool {
	var stepErr *wf.StepError
	if errors.As(err, &stepErr) {
		return true
	}
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == stepErrorType
}
