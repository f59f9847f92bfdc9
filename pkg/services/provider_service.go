package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/yourmoment/yourmoment/pkg/crypto"
	"github.com/yourmoment/yourmoment/pkg/models"
)

// ProviderStore is the persistence surface for LLM provider configurations.
type ProviderStore interface {
	Create(ctx context.Context, cfg *models.LLMProviderConfig) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.LLMProviderConfig, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.LLMProviderConfig, error)
	Update(ctx context.Context, cfg *models.LLMProviderConfig) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ProviderService manages per-user LLM provider configurations.
type ProviderService struct {
	providers ProviderStore
	vault     *crypto.Vault
	log       *slog.Logger
}

// NewProviderService creates a new ProviderService.
func NewProviderService(providers ProviderStore, vault *crypto.Vault) *ProviderService {
	return &ProviderService{
		providers: providers,
		vault:     vault,
		log:       slog.With("component", "providers"),
	}
}

// CreateProvider validates and stores one provider configuration with an
// encrypted API key.
func (s *ProviderService) CreateProvider(ctx context.Context, userID uuid.UUID, providerName, apiKey, modelName string, maxTokens *int, temperature *float64) (*models.LLMProviderConfig, error) {
	info, ok := models.SupportedProviders[providerName]
	if !ok {
		return nil, NewValidationError("provider_name", fmt.Sprintf("unsupported provider %q", providerName))
	}
	if apiKey == "" {
		return nil, NewValidationError("api_key", "required")
	}
	if temperature != nil && (*temperature < 0 || *temperature > 1) {
		return nil, NewValidationError("temperature", "must be between 0 and 1")
	}
	if maxTokens != nil && *maxTokens <= 0 {
		return nil, NewValidationError("max_tokens", "must be positive")
	}
	if modelName == "" {
		modelName = info.DefaultModels[0]
	}

	// Key prefixes are a heuristic; a mismatch is worth a warning, not a
	// rejection.
	if info.APIKeyPrefix != "" && !strings.HasPrefix(apiKey, info.APIKeyPrefix) {
		s.log.Warn("API key does not match the provider's usual prefix",
			"provider", providerName, "expected_prefix", info.APIKeyPrefix)
	}

	encrypted, err := s.vault.EncryptAPIKey(apiKey)
	if err != nil {
		return nil, fmt.Errorf("encrypting API key: %w", err)
	}

	cfg := &models.LLMProviderConfig{
		UserID:          userID,
		ProviderName:    providerName,
		EncryptedAPIKey: encrypted,
		ModelName:       modelName,
		MaxTokens:       maxTokens,
		Temperature:     temperature,
		IsActive:        true,
	}
	if err := s.providers.Create(ctx, cfg); err != nil {
		return nil, mapStoreErr(err)
	}
	return cfg, nil
}

// GetProvider returns one configuration, enforcing ownership.
func (s *ProviderService) GetProvider(ctx context.Context, userID, id uuid.UUID) (*models.LLMProviderConfig, error) {
	cfg, err := s.providers.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if cfg.UserID != userID {
		return nil, ErrForbidden
	}
	return cfg, nil
}

// ListProviders returns a user's provider configurations.
func (s *ProviderService) ListProviders(ctx context.Context, userID uuid.UUID) ([]models.LLMProviderConfig, error) {
	return s.providers.ListByUser(ctx, userID)
}

// SetActive toggles a configuration in or out of the fallback chain.
func (s *ProviderService) SetActive(ctx context.Context, userID, id uuid.UUID, active bool) (*models.LLMProviderConfig, error) {
	cfg, err := s.GetProvider(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	cfg.IsActive = active
	if err := s.providers.Update(ctx, cfg); err != nil {
		return nil, mapStoreErr(err)
	}
	return cfg, nil
}

// DeleteProvider removes a configuration, enforcing ownership.
func (s *ProviderService) DeleteProvider(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.GetProvider(ctx, userID, id); err != nil {
		return err
	}
	return mapStoreErr(s.providers.Delete(ctx, id))
}
