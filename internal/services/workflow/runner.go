// Package workflow runs a declared list of steps in order over a shared state
// value and checkpoints the state after every step, so an interrupted run
// resumes at the first unfinished step.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// ErrStepIndex is returned for an index outside the declared steps
var ErrStepIndex = errors.New("step index out of range")

// Step is one named unit of a run. A failing non-fatal step is recorded as
// skipped and the run continues.
type Step[S any] struct {
	Name  string
	Fatal bool
	Run   func(ctx context.Context, state *S) error
}

// StepError is the failure of a fatal step
type StepError struct {
	RunKey string
	Index  int
	Step   string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepEvent describes a finished step
type StepEvent struct {
	RunKey  string
	Index   int
	Step    string
	Outcome models.StepOutcome
	Err     error
}

// Hook observes finished steps together with the state they produced
type Hook[S any] func(ctx context.Context, ev StepEvent, state *S)

// Runner executes steps of type S
type Runner[S any] struct {
	steps []Step[S]
	store CheckpointStore
	log   *logger.Logger
	hooks []Hook[S]
}

// Option configures a Runner
type Option func(*options)

type options struct {
	log *logger.Logger
}

func WithLogger(log *logger.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func NewRunner[S any](steps []Step[S], store CheckpointStore, opts ...Option) *Runner[S] {
	o := options{log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Runner[S]{steps: steps, store: store, log: o.log}
}

// OnStep registers a hook called after each step, including failed ones.
// Hooks must be registered before the runner is used.
func (r *Runner[S]) OnStep(h Hook[S]) *Runner[S] {
	if h != nil {
		r.hooks = append(r.hooks, h)
	}
	return r
}

// Steps returns the declared step names in order
func (r *Runner[S]) Steps() []string {
	names := make([]string, len(r.steps))
	for i, s := range r.steps {
		names[i] = s.Name
	}
	return names
}

// Len is the number of declared steps
func (r *Runner[S]) Len() int {
	return len(r.steps)
}

// Resume loads the checkpointed state of runKey into state and returns the
// index of the next step to run. It returns 0 when the run has no checkpoint.
func (r *Runner[S]) Resume(ctx context.Context, runKey string, state *S) (int, error) {
	cp, err := r.store.Latest(ctx, runKey)
	if err != nil {
		return 0, err
	}
	if cp == nil {
		return 0, nil
	}
	if len(cp.State) > 0 {
		if err := json.Unmarshal(cp.State, state); err != nil {
			return 0, fmt.Errorf("decoding checkpoint state for %s: %w", runKey, err)
		}
	}
	return cp.StepIndex + 1, nil
}

// Run executes every step not yet checkpointed for runKey. It stops at the
// first fatal failure and returns a *StepError.
func (r *Runner[S]) Run(ctx context.Context, runKey string, state *S) error {
	next, err := r.Resume(ctx, runKey, state)
	if err != nil {
		return err
	}
	if next > 0 {
		r.log.Info("Resuming run", "run_key", runKey, "next_step", next)
	}
	for i := next; i < len(r.steps); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Advance(ctx, runKey, i, state); err != nil {
			return err
		}
	}
	return nil
}

// Advance runs the step at index and checkpoints the resulting state
func (r *Runner[S]) Advance(ctx context.Context, runKey string, index int, state *S) error {
	if index < 0 || index >= len(r.steps) {
		return fmt.Errorf("%w: %d", ErrStepIndex, index)
	}
	step := r.steps[index]
	log := r.log.With("run_key", runKey, "step", step.Name)

	started := time.Now()
	stepErr := step.Run(ctx, state)
	outcome := models.StepCompleted

	if stepErr != nil {
		if step.Fatal || ctx.Err() != nil {
			log.Error("Step failed", "duration", time.Since(started).String(), "error", stepErr)
			r.notify(ctx, StepEvent{RunKey: runKey, Index: index, Step: step.Name, Err: stepErr}, state)
			return &StepError{RunKey: runKey, Index: index, Step: step.Name, Err: stepErr}
		}
		log.Warn("Optional step failed, continuing", "error", stepErr)
		outcome = models.StepSkipped
	} else {
		log.Debug("Step completed", "duration", time.Since(started).String())
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state after %s: %w", step.Name, err)
	}
	cp := &models.StepCheckpoint{
		RunKey:    runKey,
		StepIndex: index,
		StepName:  step.Name,
		Outcome:   outcome,
		State:     raw,
	}
	if stepErr != nil {
		cp.Error = stepErr.Error()
	}
	if err := r.store.Save(ctx, cp); err != nil {
		return err
	}

	r.notify(ctx, StepEvent{RunKey: runKey, Index: index, Step: step.Name, Outcome: outcome, Err: stepErr}, state)
	return nil
}

// Forget drops the checkpoints of a run
func (r *Runner[S]) Forget(ctx context.Context, runKey string) error {
	return r.store.Delete(ctx, runKey)
}

func (r *Runner[S]) notify(ctx context.Context, ev StepEvent, state *S) {
	for _, h := range r.hooks {
		h(ctx, ev, state)
	}
}
