package temporalx

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/killallgit/audiolingu-api/internal/services/generation"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// Worker polls the podcast task queue and runs steps through the orchestrator
type Worker struct {
	w         worker.Worker
	taskQueue string
	log       *logger.Logger
}

// NewWorker registers the podcast workflow and its step activity.
// concurrency bounds the number of steps executing at once.
func NewWorker(c temporalsdkclient.Client, taskQueue string, concurrency int, orch *generation.Orchestrator, log *logger.Logger) (*Worker, error) {
	if c == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if orch == nil {
		return nil, fmt.Errorf("temporal worker missing orchestrator")
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = logger.Nop()
	}

	w := worker.New(c, taskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	acts := &generation.Activities{Orchestrator: orch}
	w.RegisterWorkflowWithOptions(generation.PodcastWorkflow, workflow.RegisterOptions{Name: generation.WorkflowName})
	w.RegisterActivityWithOptions(acts.RunPodcastStep, activity.RegisterOptions{Name: generation.ActivityRunStep})

	return &Worker{w: w, taskQueue: taskQueue, log: log}, nil
}

// Start begins polling and stops when ctx is done
func (w *Worker) Start(ctx context.Context) error {
	if err := w.w.Start(); err != nil {
		return fmt.Errorf("starting temporal worker: %w", err)
	}
	w.log.Info("Temporal worker started", "task_queue", w.taskQueue)
	go func() {
		<-ctx.Done()
		w.w.Stop()
		w.log.Info("Temporal worker stopped", "task_queue", w.taskQueue)
	}()
	return nil
}
