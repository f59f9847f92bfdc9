package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yourmoment/yourmoment/pkg/crypto"
	"github.com/yourmoment/yourmoment/pkg/models"
)

// LoginStore is the persistence surface for platform logins.
type LoginStore interface {
	Create(ctx context.Context, login *models.PlatformLogin) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PlatformLogin, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PlatformLogin, error)
	Update(ctx context.Context, login *models.PlatformLogin) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// LoginService manages platform credential pairs. Credentials are encrypted
// before they reach the store and never returned in plaintext.
type LoginService struct {
	logins LoginStore
	vault  *crypto.Vault
}

// NewLoginService creates a new LoginService.
func NewLoginService(logins LoginStore, vault *crypto.Vault) *LoginService {
	return &LoginService{logins: logins, vault: vault}
}

// CreateLogin encrypts and stores a new credential pair.
func (s *LoginService) CreateLogin(ctx context.Context, userID uuid.UUID, name, username, password string, isAdmin bool) (*models.PlatformLogin, error) {
	if name == "" {
		return nil, NewValidationError("name", "required")
	}
	if username == "" {
		return nil, NewValidationError("username", "required")
	}
	if password == "" {
		return nil, NewValidationError("password", "required")
	}

	encUsername, encPassword, err := s.vault.EncryptCredentials(username, password)
	if err != nil {
		return nil, fmt.Errorf("encrypting credentials: %w", err)
	}

	login := &models.PlatformLogin{
		UserID:            userID,
		Name:              name,
		EncryptedUsername: encUsername,
		EncryptedPassword: encPassword,
		IsAdmin:           isAdmin,
		IsActive:          true,
	}
	if err := s.logins.Create(ctx, login); err != nil {
		return nil, mapStoreErr(err)
	}
	return login, nil
}

// GetLogin returns one login, enforcing ownership.
func (s *LoginService) GetLogin(ctx context.Context, userID, id uuid.UUID) (*models.PlatformLogin, error) {
	login, err := s.logins.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if login.UserID != userID {
		return nil, ErrForbidden
	}
	return login, nil
}

// ListLogins returns a user's logins.
func (s *LoginService) ListLogins(ctx context.Context, userID uuid.UUID) ([]models.PlatformLogin, error) {
	return s.logins.ListByUser(ctx, userID)
}

// UpdateCredentials replaces the stored credential pair.
func (s *LoginService) UpdateCredentials(ctx context.Context, userID, id uuid.UUID, username, password string) (*models.PlatformLogin, error) {
	if username == "" || password == "" {
		return nil, NewValidationError("credentials", "username and password required")
	}
	login, err := s.GetLogin(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	encUsername, encPassword, err := s.vault.EncryptCredentials(username, password)
	if err != nil {
		return nil, fmt.Errorf("encrypting credentials: %w", err)
	}
	login.EncryptedUsername = encUsername
	login.EncryptedPassword = encPassword
	if err := s.logins.Update(ctx, login); err != nil {
		return nil, mapStoreErr(err)
	}
	return login, nil
}

// DeleteLogin removes a login, enforcing ownership.
func (s *LoginService) DeleteLogin(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.GetLogin(ctx, userID, id); err != nil {
		return err
	}
	return mapStoreErr(s.logins.Delete(ctx, id))
}

// Username returns the decrypted platform username for display.
func (s *LoginService) Username(ctx context.Context, userID, id uuid.UUID) (string, error) {
	login, err := s.GetLogin(ctx, userID, id)
	if err != nil {
		return "", err
	}
	username, _, err := s.vault.DecryptCredentials(login.EncryptedUsername, login.EncryptedPassword)
	if err != nil {
		return "", fmt.Errorf("decrypting credentials: %w", err)
	}
	return username, nil
}
