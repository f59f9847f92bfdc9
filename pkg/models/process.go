package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessStatus is the monitoring process lifecycle state.
type ProcessStatus string

// Monitoring process states.
const (
	ProcessStatusCreated   ProcessStatus = "created"
	ProcessStatusRunning   ProcessStatus = "running"
	ProcessStatusStopped   ProcessStatus = "stopped"
	ProcessStatusCompleted ProcessStatus = "completed"
	ProcessStatusFailed    ProcessStatus = "failed"
)

// MonitoringProcess is a user-defined recipe for producing AI comments on
// articles matching filters, bounded by a wall-clock duration.
type MonitoringProcess struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`

	CategoryFilter *int    `db:"category_filter" json:"category_filter,omitempty"`
	TaskFilter     *int    `db:"task_filter" json:"task_filter,omitempty"`
	TabFilter      *string `db:"tab_filter" json:"tab_filter,omitempty"`
	SearchFilter   *string `db:"search_filter" json:"search_filter,omitempty"`
	SortOption     *string `db:"sort_option" json:"sort_option,omitempty"`

	MaxDurationMinutes int  `db:"max_duration_minutes" json:"max_duration_minutes"`
	GenerateOnly       bool `db:"generate_only" json:"generate_only"`
	HideComments       bool `db:"hide_comments" json:"hide_comments"`

	LLMProviderID *uuid.UUID `db:"llm_provider_id" json:"llm_provider_id,omitempty"`

	Status         ProcessStatus `db:"status" json:"status"`
	IsActive       bool          `db:"is_active" json:"is_active"`
	StartedAt      *time.Time    `db:"started_at" json:"started_at,omitempty"`
	StoppedAt      *time.Time    `db:"stopped_at" json:"stopped_at,omitempty"`
	LastActivityAt *time.Time    `db:"last_activity_at" json:"last_activity_at,omitempty"`

	// Per-stage background job ids, recorded when each stage is enqueued.
	DiscoveryJobID   *uuid.UUID `db:"discovery_job_id" json:"discovery_job_id,omitempty"`
	PreparationJobID *uuid.UUID `db:"preparation_job_id" json:"preparation_job_id,omitempty"`
	GenerationJobID  *uuid.UUID `db:"generation_job_id" json:"generation_job_id,omitempty"`
	PostingJobID     *uuid.UUID `db:"posting_job_id" json:"posting_job_id,omitempty"`

	// Per-stage progress counters.
	ArticlesDiscovered int `db:"articles_discovered" json:"articles_discovered"`
	ArticlesPrepared   int `db:"articles_prepared" json:"articles_prepared"`
	CommentsGenerated  int `db:"comments_generated" json:"comments_generated"`
	CommentsPosted     int `db:"comments_posted" json:"comments_posted"`

	// Per-stage error counters.
	DiscoveryErrors   int `db:"discovery_errors" json:"discovery_errors"`
	PreparationErrors int `db:"preparation_errors" json:"preparation_errors"`
	GenerationErrors  int `db:"generation_errors" json:"generation_errors"`
	PostingErrors     int `db:"posting_errors" json:"posting_errors"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StageJobIDs returns the recorded background job ids across all stages.
func (p *MonitoringProcess) StageJobIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, id := range []*uuid.UUID{p.DiscoveryJobID, p.PreparationJobID, p.GenerationJobID, p.PostingJobID} {
		if id != nil {
			ids = append(ids, *id)
		}
	}
	return ids
}

// CanStart reports whether the process may transition to running.
func (p *MonitoringProcess) CanStart() bool {
	return p.Status == ProcessStatusCreated && p.IsActive
}

// IsRunning reports whether the process is currently running.
func (p *MonitoringProcess) IsRunning() bool {
	return p.Status == ProcessStatusRunning
}

// IsTerminal reports whether the process reached a terminal state.
func (p *MonitoringProcess) IsTerminal() bool {
	switch p.Status {
	case ProcessStatusStopped, ProcessStatusCompleted, ProcessStatusFailed:
		return true
	}
	return false
}

// Deadline returns the wall-clock instant at which the duration budget is
// exhausted. Zero time when the process has not started.
func (p *MonitoringProcess) Deadline() time.Time {
	if p.StartedAt == nil {
		return time.Time{}
	}
	return p.StartedAt.Add(time.Duration(p.MaxDurationMinutes) * time.Minute)
}

// DeadlineExceeded reports whether the duration budget is exhausted at now.
func (p *MonitoringProcess) DeadlineExceeded(now time.Time) bool {
	if p.StartedAt == nil {
		return false
	}
	return !now.Before(p.Deadline())
}

// ProcessLogin is the process↔login association row.
type ProcessLogin struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	MonitoringProcessID uuid.UUID `db:"monitoring_process_id" json:"monitoring_process_id"`
	PlatformLoginID     uuid.UUID `db:"platform_login_id" json:"platform_login_id"`
	IsActive            bool      `db:"is_active" json:"is_active"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// ProcessPrompt is the process↔prompt association row with a weight > 0.
type ProcessPrompt struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	MonitoringProcessID uuid.UUID `db:"monitoring_process_id" json:"monitoring_process_id"`
	PromptTemplateID    uuid.UUID `db:"prompt_template_id" json:"prompt_template_id"`
	Weight              float64   `db:"weight" json:"weight"`
	IsActive            bool      `db:"is_active" json:"is_active"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}
