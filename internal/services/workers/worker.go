package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/jobs"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// JobProcessor defines the interface for processing different job types
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *models.Job) error
	CanProcess(jobType models.JobType) bool
}

// Worker represents a background worker that processes jobs of the given
// types, one at a time
type Worker struct {
	id           string
	jobService   jobs.Service
	jobTypes     []models.JobType
	processors   []JobProcessor
	stopChan     chan struct{}
	wg           sync.WaitGroup
	pollInterval time.Duration
	log          *logger.Logger
}

// NewWorker creates a new worker instance
func NewWorker(id string, jobService jobs.Service, jobTypes []models.JobType, pollInterval time.Duration, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Nop()
	}
	return &Worker{
		id:           id,
		jobService:   jobService,
		jobTypes:     jobTypes,
		processors:   make([]JobProcessor, 0),
		stopChan:     make(chan struct{}),
		pollInterval: pollInterval,
		log:          log.With("worker_id", id),
	}
}

// RegisterProcessor registers a job processor
func (w *Worker) RegisterProcessor(processor JobProcessor) {
	w.processors = append(w.processors, processor)
}

// Start starts the worker in a goroutine
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the worker gracefully
func (w *Worker) Stop() {
	close(w.stopChan)
	w.wg.Wait()
}

// run is the main worker loop
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	w.log.Debug("Worker starting", "job_types", w.jobTypes)
	defer w.log.Debug("Worker stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			// Drain due jobs before waiting for the next tick
			for {
				processed, err := w.processNextJob(ctx)
				if err != nil {
					w.log.Warn("Error processing job", "error", err)
				}
				if !processed || ctx.Err() != nil || w.stopping() {
					break
				}
			}
		}
	}
}

func (w *Worker) stopping() bool {
	select {
	case <-w.stopChan:
		return true
	default:
		return false
	}
}

// processNextJob claims and processes the next available job. It reports
// whether a job was claimed.
func (w *Worker) processNextJob(ctx context.Context) (bool, error) {
	if len(w.processors) == 0 {
		return false, fmt.Errorf("no job processors registered")
	}

	job, err := w.jobService.ClaimNextJob(ctx, w.id, w.jobTypes)
	if err != nil {
		if errors.Is(err, jobs.ErrNoJobsAvailable) {
			return false, nil
		}
		return false, err
	}

	log := w.log.With("job_id", job.ID, "type", job.Type)
	log.Info("Claimed job", "attempt", job.RetryCount+1)

	var processor JobProcessor
	for _, p := range w.processors {
		if p.CanProcess(job.Type) {
			processor = p
			break
		}
	}

	if processor == nil {
		err := models.NewValidationError("unsupported_type", fmt.Sprintf("no processor for job type %s", job.Type), nil)
		if failErr := w.jobService.FailJob(ctx, job.ID, err); failErr != nil {
			log.Error("Failed to mark job as failed", "error", failErr)
		}
		return true, err
	}

	started := time.Now()
	if err := processor.ProcessJob(ctx, job); err != nil {
		// Shutdown: hand the job back so the next worker resumes it
		if ctx.Err() != nil {
			if relErr := w.jobService.ReleaseJob(context.WithoutCancel(ctx), job.ID); relErr != nil {
				log.Error("Failed to release job", "error", relErr)
			}
			return true, nil
		}
		if failErr := w.jobService.FailJob(ctx, job.ID, err); failErr != nil {
			log.Error("Failed to mark job as failed", "error", failErr)
		}
		return true, fmt.Errorf("job %d processing failed: %w", job.ID, err)
	}

	log.Info("Completed job", "elapsed", time.Since(started).String())
	return true, nil
}

// WorkerPool manages multiple workers sharing one set of job types. The pool
// never runs more jobs at once than it has workers.
type WorkerPool struct {
	name       string
	workers    []*Worker
	jobService jobs.Service
	mu         sync.RWMutex
	started    bool
	log        *logger.Logger
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(name string, jobService jobs.Service, jobTypes []models.JobType, workerCount int, pollInterval time.Duration, log *logger.Logger) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	pool := &WorkerPool{
		name:       name,
		jobService: jobService,
		workers:    make([]*Worker, workerCount),
		log:        log.With("pool", name),
	}

	for i := 0; i < workerCount; i++ {
		workerID := fmt.Sprintf("%s-%d", name, i+1)
		pool.workers[i] = NewWorker(workerID, jobService, jobTypes, pollInterval, pool.log)
	}

	return pool
}

// Size is the number of workers
func (p *WorkerPool) Size() int {
	return len(p.workers)
}

// RegisterProcessor registers a processor with all workers
func (p *WorkerPool) RegisterProcessor(processor JobProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, worker := range p.workers {
		worker.RegisterProcessor(processor)
	}
}

// Start starts all workers
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("worker pool %s already started", p.name)
	}

	p.log.Info("Starting worker pool", "workers", len(p.workers))

	for _, worker := range p.workers {
		worker.Start(ctx)
	}

	p.started = true
	return nil
}

// Stop stops all workers gracefully, waiting for in-flight jobs
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.log.Info("Stopping worker pool")

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.started = false
}
