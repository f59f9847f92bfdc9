package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yourmoment/yourmoment/pkg/models"
)

// PromptRepository persists prompt templates.
type PromptRepository struct {
	db *sqlx.DB
}

// Create inserts a new template.
func (r *PromptRepository) Create(ctx context.Context, tmpl *models.PromptTemplate) error {
	tmpl.ID = uuid.New()
	now := time.Now().UTC()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO prompt_templates (id, user_id, name, category, system_prompt,
			user_prompt_template, is_active, created_at, updated_at)
		VALUES (:id, :user_id, :name, :category, :system_prompt,
			:user_prompt_template, :is_active, :created_at, :updated_at)`,
		tmpl)
	if err != nil {
		return fmt.Errorf("creating prompt template: %w", err)
	}
	return nil
}

// GetByID returns the template with the given id.
func (r *PromptRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PromptTemplate, error) {
	var tmpl models.PromptTemplate
	err := r.db.GetContext(ctx, &tmpl, `SELECT * FROM prompt_templates WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &tmpl, nil
}

// ListVisibleToUser returns SYSTEM templates plus the user's own, system
// templates first.
func (r *PromptRepository) ListVisibleToUser(ctx context.Context, userID uuid.UUID) ([]models.PromptTemplate, error) {
	var tmpls []models.PromptTemplate
	err := r.db.SelectContext(ctx, &tmpls, `
		SELECT * FROM prompt_templates
		WHERE category = 'SYSTEM' OR user_id = $1
		ORDER BY category, created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing prompt templates: %w", err)
	}
	return tmpls, nil
}

// Update persists mutable template fields.
func (r *PromptRepository) Update(ctx context.Context, tmpl *models.PromptTemplate) error {
	tmpl.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE prompt_templates SET name = :name, system_prompt = :system_prompt,
			user_prompt_template = :user_prompt_template, is_active = :is_active,
			updated_at = :updated_at
		WHERE id = :id`,
		tmpl)
	if err != nil {
		return fmt.Errorf("updating prompt template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a template.
func (r *PromptRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM prompt_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting prompt template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
