package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourmoment/yourmoment/pkg/config"
	"github.com/yourmoment/yourmoment/pkg/models"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// JobRegistry is the subset of WorkerPool used by Worker for cancellation
// registration.
type JobRegistry interface {
	RegisterJob(jobID uuid.UUID, cancel context.CancelFunc)
	UnregisterJob(jobID uuid.UUID)
}

// Worker is a single queue worker that polls for and processes stage jobs.
type Worker struct {
	id        string
	podID     string
	jobs      *Jobs
	config    *config.QueueConfig
	executors map[models.Stage]StageExecutor
	pool      JobRegistry
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	// Health tracking
	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a new queue worker.
func NewWorker(id, podID string, jobs *Jobs, cfg *config.QueueConfig, executors map[models.Stage]StageExecutor, pool JobRegistry) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		jobs:         jobs,
		config:       cfg,
		executors:    executors,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.status),
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing job", "error", err)
				w.sleep(time.Second) // Brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess checks capacity, claims a job, and processes it.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	// 1. Check global capacity (best-effort; racy with concurrent workers but
	//    bounded by WorkerCount and mitigated by poll jitter).
	running, err := w.jobs.RunningCount(ctx)
	if err != nil {
		return fmt.Errorf("checking running jobs: %w", err)
	}
	if running >= w.config.MaxConcurrentJobs {
		return ErrAtCapacity
	}

	// 2. Claim next job
	job, err := w.jobs.ClaimNext(ctx, w.podID)
	if err != nil {
		return err
	}

	log := slog.With("job_id", job.ID, "queue", job.Queue, "worker_id", w.id)
	log.Info("Job claimed", "process_id", job.MonitoringProcessID)

	w.setStatus(WorkerStatusWorking, job.ID.String())
	defer w.setStatus(WorkerStatusIdle, "")

	executor, ok := w.executors[job.Queue]
	if !ok {
		err := fmt.Errorf("no executor registered for queue %q", job.Queue)
		_ = w.jobs.Finish(context.Background(), job.ID, models.JobStatusFailed, err)
		return err
	}

	// 3. Create job context with timeout
	jobCtx, cancelJob := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancelJob()

	// 4. Register cancel function for API-triggered revocation
	w.pool.RegisterJob(job.ID, cancelJob)
	defer w.pool.UnregisterJob(job.ID)

	// 5. Start heartbeat
	heartbeatCtx, cancelHeartbeat := context.WithCancel(jobCtx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, job.ID)

	// 6. Execute the stage
	result := executor.Execute(jobCtx, job)

	// 6a. Nil-guard: synthesize a safe result if the executor returned nil
	if result == nil {
		switch {
		case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
			result = &ExecutionResult{
				Status: models.JobStatusTimedOut,
				Error:  fmt.Errorf("job timed out after %v", w.config.JobTimeout),
			}
		case errors.Is(jobCtx.Err(), context.Canceled):
			result = &ExecutionResult{
				Status: models.JobStatusRevoked,
				Error:  context.Canceled,
			}
		default:
			result = &ExecutionResult{
				Status: models.JobStatusFailed,
				Error:  fmt.Errorf("executor returned nil result"),
			}
		}
	}

	// 7. Handle timeout and cancellation the executor did not classify
	if result.Status == "" && errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		result = &ExecutionResult{
			Status: models.JobStatusTimedOut,
			Error:  fmt.Errorf("job timed out after %v", w.config.JobTimeout),
		}
	}
	if result.Status == "" && errors.Is(jobCtx.Err(), context.Canceled) {
		result = &ExecutionResult{
			Status: models.JobStatusRevoked,
			Error:  context.Canceled,
		}
	}

	// 8. Stop heartbeat
	cancelHeartbeat()

	// 9. Write terminal status (background context — job ctx may be cancelled)
	if err := w.jobs.Finish(context.Background(), job.ID, result.Status, result.Error); err != nil {
		log.Error("Failed to update job terminal status", "error", err)
		return err
	}

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()

	log.Info("Job processing complete", "status", result.Status)
	return nil
}

// runHeartbeat periodically refreshes the job heartbeat for orphan detection.
func (w *Worker) runHeartbeat(ctx context.Context, jobID uuid.UUID) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.jobs.Heartbeat(ctx, jobID); err != nil {
				slog.Warn("Heartbeat update failed", "job_id", jobID, "error", err)
			}
		}
	}
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
