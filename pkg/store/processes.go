package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yourmoment/yourmoment/pkg/models"
)

// ProcessRepository persists monitoring processes and their associations.
type ProcessRepository struct {
	db *sqlx.DB
}

// Create inserts a process together with its login and prompt associations.
func (r *ProcessRepository) Create(ctx context.Context, proc *models.MonitoringProcess, loginIDs []uuid.UUID, prompts []models.ProcessPrompt) error {
	proc.ID = uuid.New()
	now := time.Now().UTC()
	proc.CreatedAt = now
	proc.UpdatedAt = now
	if proc.Status == "" {
		proc.Status = models.ProcessStatusCreated
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning process transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO monitoring_processes (id, user_id, name, description,
			category_filter, task_filter, tab_filter, search_filter, sort_option,
			max_duration_minutes, generate_only, hide_comments, llm_provider_id,
			status, is_active, created_at, updated_at)
		VALUES (:id, :user_id, :name, :description,
			:category_filter, :task_filter, :tab_filter, :search_filter, :sort_option,
			:max_duration_minutes, :generate_only, :hide_comments, :llm_provider_id,
			:status, :is_active, :created_at, :updated_at)`,
		proc)
	if err != nil {
		return fmt.Errorf("creating monitoring process: %w", err)
	}

	for _, loginID := range loginIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO process_logins (id, monitoring_process_id, platform_login_id, is_active, created_at)
			VALUES ($1, $2, $3, TRUE, $4)`,
			uuid.New(), proc.ID, loginID, now)
		if err != nil {
			return fmt.Errorf("attaching login to process: %w", err)
		}
	}
	for _, pp := range prompts {
		weight := pp.Weight
		if weight <= 0 {
			weight = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO process_prompts (id, monitoring_process_id, prompt_template_id, weight, is_active, created_at)
			VALUES ($1, $2, $3, $4, TRUE, $5)`,
			uuid.New(), proc.ID, pp.PromptTemplateID, weight, now)
		if err != nil {
			return fmt.Errorf("attaching prompt to process: %w", err)
		}
	}
	return tx.Commit()
}

// GetByID returns the process with the given id.
func (r *ProcessRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MonitoringProcess, error) {
	var proc models.MonitoringProcess
	err := r.db.GetContext(ctx, &proc, `SELECT * FROM monitoring_processes WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &proc, nil
}

// ListByUser returns a user's processes, newest first.
func (r *ProcessRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.MonitoringProcess, error) {
	var procs []models.MonitoringProcess
	err := r.db.SelectContext(ctx, &procs, `
		SELECT * FROM monitoring_processes WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing monitoring processes: %w", err)
	}
	return procs, nil
}

// ListByStatus returns all processes in the given state.
func (r *ProcessRepository) ListByStatus(ctx context.Context, status models.ProcessStatus) ([]models.MonitoringProcess, error) {
	var procs []models.MonitoringProcess
	err := r.db.SelectContext(ctx, &procs, `
		SELECT * FROM monitoring_processes WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("listing processes by status: %w", err)
	}
	return procs, nil
}

// CountActiveByUser counts a user's created-or-running processes.
func (r *ProcessRepository) CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM monitoring_processes
		WHERE user_id = $1 AND status IN ('created', 'running')`, userID)
	if err != nil {
		return 0, fmt.Errorf("counting active processes: %w", err)
	}
	return count, nil
}

// TransitionStatus moves a process from one state to another atomically.
// Returns ErrNotFound when the process is not currently in the from state,
// which makes concurrent stop/complete races lose cleanly.
func (r *ProcessRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.ProcessStatus) error {
	var query string
	switch to {
	case models.ProcessStatusRunning:
		query = `UPDATE monitoring_processes
			SET status = $3, started_at = NOW(), last_activity_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status = $2`
	case models.ProcessStatusStopped, models.ProcessStatusCompleted, models.ProcessStatusFailed:
		query = `UPDATE monitoring_processes
			SET status = $3, stopped_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status = $2`
	default:
		query = `UPDATE monitoring_processes
			SET status = $3, updated_at = NOW()
			WHERE id = $1 AND status = $2`
	}
	res, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("transitioning process %s → %s: %w", from, to, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStageJob records the background job id for one stage.
func (r *ProcessRepository) SetStageJob(ctx context.Context, id uuid.UUID, stage models.Stage, jobID uuid.UUID) error {
	column := ""
	switch stage {
	case models.StageDiscovery:
		column = "discovery_job_id"
	case models.StagePreparation:
		column = "preparation_job_id"
	case models.StageGeneration:
		column = "generation_job_id"
	case models.StagePosting:
		column = "posting_job_id"
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
	query := fmt.Sprintf(`UPDATE monitoring_processes SET %s = $2, updated_at = NOW() WHERE id = $1`, column)
	_, err := r.db.ExecContext(ctx, query, id, jobID)
	if err != nil {
		return fmt.Errorf("recording %s job: %w", stage, err)
	}
	return nil
}

// AddStageProgress bumps one stage's progress and error counters and stamps
// activity.
func (r *ProcessRepository) AddStageProgress(ctx context.Context, id uuid.UUID, stage models.Stage, processed, errors int) error {
	var progressCol, errorCol string
	switch stage {
	case models.StageDiscovery:
		progressCol, errorCol = "articles_discovered", "discovery_errors"
	case models.StagePreparation:
		progressCol, errorCol = "articles_prepared", "preparation_errors"
	case models.StageGeneration:
		progressCol, errorCol = "comments_generated", "generation_errors"
	case models.StagePosting:
		progressCol, errorCol = "comments_posted", "posting_errors"
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
	query := fmt.Sprintf(`
		UPDATE monitoring_processes
		SET %s = %s + $2, %s = %s + $3, last_activity_at = NOW(), updated_at = NOW()
		WHERE id = $1`, progressCol, progressCol, errorCol, errorCol)
	_, err := r.db.ExecContext(ctx, query, id, processed, errors)
	if err != nil {
		return fmt.Errorf("recording %s progress: %w", stage, err)
	}
	return nil
}

// Logins returns the process's active login associations.
func (r *ProcessRepository) Logins(ctx context.Context, processID uuid.UUID) ([]models.ProcessLogin, error) {
	var rows []models.ProcessLogin
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM process_logins
		WHERE monitoring_process_id = $1 AND is_active ORDER BY created_at`, processID)
	if err != nil {
		return nil, fmt.Errorf("listing process logins: %w", err)
	}
	return rows, nil
}

// Prompts returns the process's active prompt associations.
func (r *ProcessRepository) Prompts(ctx context.Context, processID uuid.UUID) ([]models.ProcessPrompt, error) {
	var rows []models.ProcessPrompt
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM process_prompts
		WHERE monitoring_process_id = $1 AND is_active ORDER BY created_at`, processID)
	if err != nil {
		return nil, fmt.Errorf("listing process prompts: %w", err)
	}
	return rows, nil
}

// Delete removes a process and everything hanging off it.
func (r *ProcessRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM monitoring_processes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting monitoring process: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
