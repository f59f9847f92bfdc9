package queue

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourmoment/yourmoment/pkg/config"
	"github.com/yourmoment/yourmoment/pkg/models"
)

func newMockJobs(t *testing.T) (*Jobs, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewJobs(sqlx.NewDb(db, "sqlmock")), mock
}

func TestPollIntervalJitterRange(t *testing.T) {
	w := &Worker{config: &config.QueueConfig{
		PollInterval:       time.Second,
		PollIntervalJitter: 500 * time.Millisecond,
	}}

	for i := 0; i < 100; i++ {
		d := w.pollInterval()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestPollIntervalNoJitter(t *testing.T) {
	w := &Worker{config: &config.QueueConfig{PollInterval: 2 * time.Second}}
	assert.Equal(t, 2*time.Second, w.pollInterval())
}

func TestEnqueueAndClaim(t *testing.T) {
	jobs, mock := newMockJobs(t)
	processID := uuid.New()

	mock.ExpectExec("INSERT INTO queue_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	job, err := jobs.Enqueue(context.Background(), models.StageDiscovery, processID)
	require.NoError(t, err)
	assert.Equal(t, models.StageDiscovery, job.Queue)
	assert.Equal(t, models.JobStatusPending, job.Status)

	claimRows := sqlmock.NewRows([]string{"id", "queue", "monitoring_process_id", "status", "enqueued_at"}).
		AddRow(job.ID, "discovery", processID, "pending", job.EnqueuedAt)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM queue_jobs").WillReturnRows(claimRows)
	mock.ExpectExec("UPDATE queue_jobs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := jobs.ClaimNext(context.Background(), "pod-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, models.JobStatusRunning, claimed.Status)
	require.NotNil(t, claimed.PodID)
	assert.Equal(t, "pod-1", *claimed.PodID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextEmptyQueue(t *testing.T) {
	jobs, mock := newMockJobs(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM queue_jobs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := jobs.ClaimNext(context.Background(), "pod-1")
	assert.ErrorIs(t, err, ErrNoJobsAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishRejectsNonTerminalStatus(t *testing.T) {
	jobs, _ := newMockJobs(t)
	err := jobs.Finish(context.Background(), uuid.New(), models.JobStatusRunning, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not terminal")
}

func TestRevokeOnlyPending(t *testing.T) {
	jobs, mock := newMockJobs(t)

	mock.ExpectExec("UPDATE queue_jobs SET status = 'revoked'").
		WillReturnResult(sqlmock.NewResult(0, 0))

	revoked, err := jobs.Revoke(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, revoked, "running jobs are not revocable through the table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelJobRegistry(t *testing.T) {
	pool := NewWorkerPool("pod-1", nil, config.DefaultQueueConfig(), nil)

	jobID := uuid.New()
	cancelled := false
	pool.RegisterJob(jobID, func() { cancelled = true })

	assert.True(t, pool.CancelJob(jobID))
	assert.True(t, cancelled)

	pool.UnregisterJob(jobID)
	assert.False(t, pool.CancelJob(jobID), "unregistered job is no longer cancellable")
	assert.False(t, pool.CancelJob(uuid.New()), "unknown job is not cancellable")
}
