package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yourmoment/yourmoment/pkg/models"
)

// ProviderRepository persists LLM provider configurations.
type ProviderRepository struct {
	db *sqlx.DB
}

// Create inserts a new provider configuration.
func (r *ProviderRepository) Create(ctx context.Context, cfg *models.LLMProviderConfig) error {
	cfg.ID = uuid.New()
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO llm_provider_configurations (id, user_id, provider_name, encrypted_api_key,
			model_name, max_tokens, temperature, is_active, last_used, created_at, updated_at)
		VALUES (:id, :user_id, :provider_name, :encrypted_api_key,
			:model_name, :max_tokens, :temperature, :is_active, :last_used, :created_at, :updated_at)`,
		cfg)
	if err != nil {
		return fmt.Errorf("creating provider config: %w", err)
	}
	return nil
}

// GetByID returns the provider configuration with the given id.
func (r *ProviderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.LLMProviderConfig, error) {
	var cfg models.LLMProviderConfig
	err := r.db.GetContext(ctx, &cfg, `SELECT * FROM llm_provider_configurations WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &cfg, nil
}

// ListByUser returns a user's provider configurations, active first.
func (r *ProviderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.LLMProviderConfig, error) {
	var cfgs []models.LLMProviderConfig
	err := r.db.SelectContext(ctx, &cfgs, `
		SELECT * FROM llm_provider_configurations WHERE user_id = $1
		ORDER BY is_active DESC, created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing provider configs: %w", err)
	}
	return cfgs, nil
}

// ListActiveByUser returns a user's active provider configurations in
// creation order, which doubles as the fallback order.
func (r *ProviderRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]models.LLMProviderConfig, error) {
	var cfgs []models.LLMProviderConfig
	err := r.db.SelectContext(ctx, &cfgs, `
		SELECT * FROM llm_provider_configurations
		WHERE user_id = $1 AND is_active ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing active provider configs: %w", err)
	}
	return cfgs, nil
}

// Update persists mutable configuration fields.
func (r *ProviderRepository) Update(ctx context.Context, cfg *models.LLMProviderConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE llm_provider_configurations SET provider_name = :provider_name,
			encrypted_api_key = :encrypted_api_key, model_name = :model_name,
			max_tokens = :max_tokens, temperature = :temperature,
			is_active = :is_active, last_used = :last_used, updated_at = :updated_at
		WHERE id = :id`,
		cfg)
	if err != nil {
		return fmt.Errorf("updating provider config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastUsed stamps the configuration as used now.
func (r *ProviderRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE llm_provider_configurations SET last_used = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touching provider config: %w", err)
	}
	return nil
}

// Delete removes a provider configuration.
func (r *ProviderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM llm_provider_configurations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting provider config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
