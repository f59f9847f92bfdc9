// Package queue provides the database-backed stage job queue and its worker
// pool: polling with jitter, FOR UPDATE SKIP LOCKED claims, heartbeats, and
// orphan recovery.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/yourmoment/yourmoment/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrNoJobsAvailable indicates no pending jobs are in the queue.
	ErrNoJobsAvailable = errors.New("no jobs available")

	// ErrAtCapacity indicates the global concurrent job limit has been reached.
	ErrAtCapacity = errors.New("at capacity")
)

// StageExecutor runs one pipeline stage for one monitoring process.
//
// The executor owns the stage's semantics: it reads and writes comment rows
// progressively during execution and decides whether the next stage should be
// enqueued. The worker only handles claiming, heartbeat, and the terminal job
// status update.
type StageExecutor interface {
	Execute(ctx context.Context, job *models.QueueJob) *ExecutionResult
}

// ExecutionResult is the terminal state of one stage job. Intermediate state
// was already persisted by the executor during processing.
type ExecutionResult struct {
	Status models.JobStatus // completed, failed, timed_out, revoked
	Error  error            // details when failed/timed_out
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	DBReachable      bool           `json:"db_reachable"`
	DBError          string         `json:"db_error,omitempty"`
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveJobs       int            `json:"active_jobs"`
	MaxConcurrent    int            `json:"max_concurrent"`
	QueueDepth       int            `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"` // "idle" or "working"
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	JobsProcessed int       `json:"jobs_processed"`
	LastActivity  time.Time `json:"last_activity"`
}
