package models

import (
	"time"

	"github.com/google/uuid"
)

// Stage identifies a pipeline stage and doubles as the queue name.
type Stage string

// Pipeline stages in execution order.
const (
	StageDiscovery   Stage = "discovery"
	StagePreparation Stage = "preparation"
	StageGeneration  Stage = "generation"
	StagePosting     Stage = "posting"
)

// NextStage returns the stage that follows s, or "" after posting.
func NextStage(s Stage) Stage {
	switch s {
	case StageDiscovery:
		return StagePreparation
	case StagePreparation:
		return StageGeneration
	case StageGeneration:
		return StagePosting
	}
	return ""
}

// JobStatus is the queue job lifecycle state.
type JobStatus string

// Queue job states.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRevoked   JobStatus = "revoked"
	JobStatusTimedOut  JobStatus = "timed_out"
)

// IsTerminal reports whether the job reached a terminal state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusRevoked, JobStatusTimedOut:
		return true
	}
	return false
}

// QueueJob is one unit of background work: a (process, stage) pair on a
// named queue, claimed and heartbeated by a worker.
type QueueJob struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	Queue               Stage      `db:"queue" json:"queue"`
	MonitoringProcessID uuid.UUID  `db:"monitoring_process_id" json:"monitoring_process_id"`
	Status              JobStatus  `db:"status" json:"status"`
	PodID               *string    `db:"pod_id" json:"pod_id,omitempty"`
	ErrorMessage        *string    `db:"error_message" json:"error_message,omitempty"`
	EnqueuedAt          time.Time  `db:"enqueued_at" json:"enqueued_at"`
	StartedAt           *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt         *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	LastHeartbeatAt     *time.Time `db:"last_heartbeat_at" json:"last_heartbeat_at,omitempty"`
}
