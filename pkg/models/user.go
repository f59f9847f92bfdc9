// Package models defines the persistent entities and their lifecycle rules.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User owns all other entities. Deleting a user cascades.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	IsVerified   bool      `db:"is_verified" json:"is_verified"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// PlatformLogin is a myMoment credential pair owned by a user. Username and
// password are stored encrypted; the display name is unique per user.
type PlatformLogin struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	UserID            uuid.UUID  `db:"user_id" json:"user_id"`
	Name              string     `db:"name" json:"name"`
	EncryptedUsername string     `db:"encrypted_username" json:"-"`
	EncryptedPassword string     `db:"encrypted_password" json:"-"`
	IsAdmin           bool       `db:"is_admin" json:"is_admin"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	LastUsed          *time.Time `db:"last_used" json:"last_used,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// PlatformSession is a live authenticated myMoment session for one login.
// At most one row per login may be active and unexpired at a time.
type PlatformSession struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	PlatformLoginID      uuid.UUID `db:"platform_login_id" json:"platform_login_id"`
	EncryptedSessionData string    `db:"encrypted_session_data" json:"-"`
	ExpiresAt            time.Time `db:"expires_at" json:"expires_at"`
	IsActive             bool      `db:"is_active" json:"is_active"`
	LastAccessed         time.Time `db:"last_accessed" json:"last_accessed"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// IsUsable reports whether the session can serve requests at the given time.
func (s *PlatformSession) IsUsable(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

// RemainingLife returns how long until the session expires. Negative when
// already expired.
func (s *PlatformSession) RemainingLife(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}
