package monitor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yourmoment/yourmoment/pkg/crypto"
	"github.com/yourmoment/yourmoment/pkg/llm"
	"github.com/yourmoment/yourmoment/pkg/models"
	"github.com/yourmoment/yourmoment/pkg/store"
)

// StoreProviderSource builds the provider chain from the database: the
// process's pinned provider first, then the owner's remaining active
// providers as fallbacks.
type StoreProviderSource struct {
	providers *store.ProviderRepository
	vault     *crypto.Vault
}

// NewStoreProviderSource wires a provider source over the repository.
func NewStoreProviderSource(providers *store.ProviderRepository, vault *crypto.Vault) *StoreProviderSource {
	return &StoreProviderSource{providers: providers, vault: vault}
}

// ProvidersForProcess resolves the ordered chain for one process.
func (s *StoreProviderSource) ProvidersForProcess(ctx context.Context, proc *models.MonitoringProcess) ([]llm.Provider, error) {
	configs, err := s.providers.ListActiveByUser(ctx, proc.UserID)
	if err != nil {
		return nil, err
	}

	// Move the pinned provider to the front, keeping the rest as fallbacks.
	if proc.LLMProviderID != nil {
		for i := range configs {
			if configs[i].ID == *proc.LLMProviderID {
				pinned := configs[i]
				configs = append(configs[:i], configs[i+1:]...)
				configs = append([]models.LLMProviderConfig{pinned}, configs...)
				break
			}
		}
	}

	chain := make([]llm.Provider, 0, len(configs))
	for i := range configs {
		provider, err := llm.NewProviderFromConfig(&configs[i], s.vault)
		if err != nil {
			return nil, fmt.Errorf("building provider %s: %w", configs[i].ID, err)
		}
		chain = append(chain, provider)
	}
	return chain, nil
}

// StoreCredentialResolver decrypts platform usernames for the
// platform_username placeholder.
type StoreCredentialResolver struct {
	logins *store.LoginRepository
	vault  *crypto.Vault
}

// NewStoreCredentialResolver wires a credential resolver over the repository.
func NewStoreCredentialResolver(logins *store.LoginRepository, vault *crypto.Vault) *StoreCredentialResolver {
	return &StoreCredentialResolver{logins: logins, vault: vault}
}

// Username returns the decrypted platform username for one login.
func (s *StoreCredentialResolver) Username(ctx context.Context, loginID uuid.UUID) (string, error) {
	login, err := s.logins.GetByID(ctx, loginID)
	if err != nil {
		return "", err
	}
	username, _, err := s.vault.DecryptCredentials(login.EncryptedUsername, login.EncryptedPassword)
	if err != nil {
		return "", fmt.Errorf("decrypting credentials for login %s: %w", loginID, err)
	}
	return username, nil
}
