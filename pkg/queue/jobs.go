package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yourmoment/yourmoment/pkg/models"
)

// Jobs is the queue_jobs repository shared by producers (the orchestrator)
// and consumers (the worker pool).
type Jobs struct {
	db *sqlx.DB
}

// NewJobs builds the job repository.
func NewJobs(db *sqlx.DB) *Jobs {
	return &Jobs{db: db}
}

// Enqueue inserts a pending job on the stage's queue.
func (j *Jobs) Enqueue(ctx context.Context, stage models.Stage, processID uuid.UUID) (*models.QueueJob, error) {
	job := &models.QueueJob{
		ID:                  uuid.New(),
		Queue:               stage,
		MonitoringProcessID: processID,
		Status:              models.JobStatusPending,
		EnqueuedAt:          time.Now().UTC(),
	}
	_, err := j.db.NamedExecContext(ctx, `
		INSERT INTO queue_jobs (id, queue, monitoring_process_id, status, enqueued_at)
		VALUES (:id, :queue, :monitoring_process_id, :status, :enqueued_at)`,
		job)
	if err != nil {
		return nil, fmt.Errorf("enqueueing %s job: %w", stage, err)
	}
	return job, nil
}

// Get returns one job by id.
func (j *Jobs) Get(ctx context.Context, id uuid.UUID) (*models.QueueJob, error) {
	var job models.QueueJob
	err := j.db.GetContext(ctx, &job, `SELECT * FROM queue_jobs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoJobsAvailable
		}
		return nil, fmt.Errorf("loading job: %w", err)
	}
	return &job, nil
}

// ClaimNext atomically claims the oldest pending job using
// FOR UPDATE SKIP LOCKED, so concurrent workers never double-claim.
func (j *Jobs) ClaimNext(ctx context.Context, podID string) (*models.QueueJob, error) {
	tx, err := j.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var job models.QueueJob
	err = tx.GetContext(ctx, &job, `
		SELECT * FROM queue_jobs
		WHERE status = 'pending'
		ORDER BY enqueued_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoJobsAvailable
		}
		return nil, fmt.Errorf("failed to query pending job: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE queue_jobs
		SET status = 'running', pod_id = $2, started_at = $3, last_heartbeat_at = $3
		WHERE id = $1`,
		job.ID, podID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	job.Status = models.JobStatusRunning
	job.PodID = &podID
	job.StartedAt = &now
	job.LastHeartbeatAt = &now
	return &job, nil
}

// Heartbeat refreshes the job's liveness timestamp.
func (j *Jobs) Heartbeat(ctx context.Context, id uuid.UUID) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE queue_jobs SET last_heartbeat_at = NOW() WHERE id = $1 AND status = 'running'`, id)
	return err
}

// Finish writes the job's terminal status.
func (j *Jobs) Finish(ctx context.Context, id uuid.UUID, status models.JobStatus, jobErr error) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	var errMsg *string
	if jobErr != nil {
		msg := jobErr.Error()
		errMsg = &msg
	}
	_, err := j.db.ExecContext(ctx, `
		UPDATE queue_jobs SET status = $2, error_message = $3, completed_at = NOW()
		WHERE id = $1`, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("finishing job: %w", err)
	}
	return nil
}

// Revoke cancels a job that has not started yet. Running jobs are cancelled
// through the pool's cancel registry instead.
func (j *Jobs) Revoke(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := j.db.ExecContext(ctx, `
		UPDATE queue_jobs SET status = 'revoked', completed_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("revoking job: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RevokeForProcess revokes every pending job of one process, returning the
// count.
func (j *Jobs) RevokeForProcess(ctx context.Context, processID uuid.UUID) (int64, error) {
	res, err := j.db.ExecContext(ctx, `
		UPDATE queue_jobs SET status = 'revoked', completed_at = NOW()
		WHERE monitoring_process_id = $1 AND status = 'pending'`, processID)
	if err != nil {
		return 0, fmt.Errorf("revoking process jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RunningCount counts running jobs across all pods.
func (j *Jobs) RunningCount(ctx context.Context) (int, error) {
	var count int
	err := j.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM queue_jobs WHERE status = 'running'`)
	if err != nil {
		return 0, fmt.Errorf("counting running jobs: %w", err)
	}
	return count, nil
}

// RunningCountForPod counts this pod's running jobs.
func (j *Jobs) RunningCountForPod(ctx context.Context, podID string) (int, error) {
	var count int
	err := j.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM queue_jobs WHERE status = 'running' AND pod_id = $1`, podID)
	if err != nil {
		return 0, fmt.Errorf("counting pod jobs: %w", err)
	}
	return count, nil
}

// PendingCount counts queued jobs across all queues.
func (j *Jobs) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := j.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM queue_jobs WHERE status = 'pending'`)
	if err != nil {
		return 0, fmt.Errorf("counting pending jobs: %w", err)
	}
	return count, nil
}

// StaleRunning returns running jobs whose heartbeat is older than the
// threshold.
func (j *Jobs) StaleRunning(ctx context.Context, threshold time.Time) ([]models.QueueJob, error) {
	var jobs []models.QueueJob
	err := j.db.SelectContext(ctx, &jobs, `
		SELECT * FROM queue_jobs
		WHERE status = 'running' AND last_heartbeat_at IS NOT NULL AND last_heartbeat_at < $1`,
		threshold)
	if err != nil {
		return nil, fmt.Errorf("querying stale jobs: %w", err)
	}
	return jobs, nil
}

// RunningForPod returns this pod's running jobs, for startup recovery.
func (j *Jobs) RunningForPod(ctx context.Context, podID string) ([]models.QueueJob, error) {
	var jobs []models.QueueJob
	err := j.db.SelectContext(ctx, &jobs, `
		SELECT * FROM queue_jobs WHERE status = 'running' AND pod_id = $1`, podID)
	if err != nil {
		return nil, fmt.Errorf("querying pod jobs: %w", err)
	}
	return jobs, nil
}

// DeleteTerminalOlderThan removes terminal jobs completed before the cutoff,
// returning how many rows were deleted.
func (j *Jobs) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `
		DELETE FROM queue_jobs
		WHERE status IN ('completed', 'failed', 'revoked', 'timed_out')
		AND completed_at IS NOT NULL AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
