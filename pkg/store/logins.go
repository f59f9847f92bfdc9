package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yourmoment/yourmoment/pkg/models"
)

// LoginRepository persists platform credential pairs.
type LoginRepository struct {
	db *sqlx.DB
}

// Create inserts a new platform login.
func (r *LoginRepository) Create(ctx context.Context, login *models.PlatformLogin) error {
	login.ID = uuid.New()
	now := time.Now().UTC()
	login.CreatedAt = now
	login.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO platform_logins (id, user_id, name, encrypted_username, encrypted_password,
			is_admin, is_active, last_used, created_at, updated_at)
		VALUES (:id, :user_id, :name, :encrypted_username, :encrypted_password,
			:is_admin, :is_active, :last_used, :created_at, :updated_at)`,
		login)
	if err != nil {
		return fmt.Errorf("creating platform login: %w", err)
	}
	return nil
}

// GetByID returns the login with the given id.
func (r *LoginRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PlatformLogin, error) {
	var login models.PlatformLogin
	err := r.db.GetContext(ctx, &login, `SELECT * FROM platform_logins WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &login, nil
}

// ListByUser returns a user's logins, active first.
func (r *LoginRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PlatformLogin, error) {
	var logins []models.PlatformLogin
	err := r.db.SelectContext(ctx, &logins, `
		SELECT * FROM platform_logins WHERE user_id = $1
		ORDER BY is_active DESC, created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing platform logins: %w", err)
	}
	return logins, nil
}

// ListByIDs returns the logins with the given ids.
func (r *LoginRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.PlatformLogin, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM platform_logins WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("building login query: %w", err)
	}
	var logins []models.PlatformLogin
	if err := r.db.SelectContext(ctx, &logins, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing platform logins by id: %w", err)
	}
	return logins, nil
}

// Update persists mutable login fields.
func (r *LoginRepository) Update(ctx context.Context, login *models.PlatformLogin) error {
	login.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE platform_logins SET name = :name, encrypted_username = :encrypted_username,
			encrypted_password = :encrypted_password, is_admin = :is_admin,
			is_active = :is_active, last_used = :last_used, updated_at = :updated_at
		WHERE id = :id`,
		login)
	if err != nil {
		return fmt.Errorf("updating platform login: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastUsed stamps the login as used now.
func (r *LoginRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE platform_logins SET last_used = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touching platform login: %w", err)
	}
	return nil
}

// Delete removes a login and its sessions.
func (r *LoginRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM platform_logins WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting platform login: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
