package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yourmoment/yourmoment/pkg/models"
)

// SessionRepository persists platform sessions. The schema enforces at most
// one active session per login via a partial unique index.
type SessionRepository struct {
	db *sqlx.DB
}

// Create deactivates any live session for the login, then inserts the new one
// in the same transaction.
func (r *SessionRepository) Create(ctx context.Context, session *models.PlatformSession) error {
	session.ID = uuid.New()
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	if session.LastAccessed.IsZero() {
		session.LastAccessed = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning session transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE platform_sessions SET is_active = FALSE, updated_at = NOW()
		WHERE platform_login_id = $1 AND is_active`,
		session.PlatformLoginID)
	if err != nil {
		return fmt.Errorf("deactivating previous sessions: %w", err)
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO platform_sessions (id, platform_login_id, encrypted_session_data,
			expires_at, is_active, last_accessed, created_at, updated_at)
		VALUES (:id, :platform_login_id, :encrypted_session_data,
			:expires_at, :is_active, :last_accessed, :created_at, :updated_at)`,
		session)
	if err != nil {
		return fmt.Errorf("creating platform session: %w", err)
	}
	return tx.Commit()
}

// GetActiveByLogin returns the login's live session, or ErrNotFound.
func (r *SessionRepository) GetActiveByLogin(ctx context.Context, loginID uuid.UUID) (*models.PlatformSession, error) {
	var session models.PlatformSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM platform_sessions
		WHERE platform_login_id = $1 AND is_active`, loginID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &session, nil
}

// Renew extends the session's expiry and stamps the access time.
func (r *SessionRepository) Renew(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE platform_sessions SET expires_at = $2, last_accessed = NOW(), updated_at = NOW()
		WHERE id = $1 AND is_active`, id, expiresAt)
	if err != nil {
		return fmt.Errorf("renewing platform session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchAccessed stamps the session as accessed now.
func (r *SessionRepository) TouchAccessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE platform_sessions SET last_accessed = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touching platform session: %w", err)
	}
	return nil
}

// UpdateSessionData replaces the encrypted cookie payload.
func (r *SessionRepository) UpdateSessionData(ctx context.Context, id uuid.UUID, encryptedData string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE platform_sessions SET encrypted_session_data = $2, updated_at = NOW()
		WHERE id = $1`, id, encryptedData)
	if err != nil {
		return fmt.Errorf("updating session data: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate marks one session inactive.
func (r *SessionRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE platform_sessions SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivating platform session: %w", err)
	}
	return nil
}

// DeactivateExpired flips every live-but-expired session inactive and returns
// how many were affected.
func (r *SessionRepository) DeactivateExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE platform_sessions SET is_active = FALSE, updated_at = NOW()
		WHERE is_active AND expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("deactivating expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteInactiveOlderThan removes inactive sessions whose last update is
// before the cutoff, returning how many were deleted.
func (r *SessionRepository) DeleteInactiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM platform_sessions WHERE NOT is_active AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting stale sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
