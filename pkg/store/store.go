// Package store contains the sqlx repositories over the PostgreSQL schema.
package store

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store bundles all repositories over one database handle.
type Store struct {
	Users     *UserRepository
	Logins    *LoginRepository
	Sessions  *SessionRepository
	Providers *ProviderRepository
	Prompts   *PromptRepository
	Processes *ProcessRepository
	Comments  *CommentRepository
	Backups   *BackupRepository
}

// New builds a Store over the given handle.
func New(db *sqlx.DB) *Store {
	return &Store{
		Users:     &UserRepository{db: db},
		Logins:    &LoginRepository{db: db},
		Sessions:  &SessionRepository{db: db},
		Providers: &ProviderRepository{db: db},
		Prompts:   &PromptRepository{db: db},
		Processes: &ProcessRepository{db: db},
		Comments:  &CommentRepository{db: db},
		Backups:   &BackupRepository{db: db},
	}
}

// wrapNotFound maps sql.ErrNoRows to ErrNotFound and passes everything else
// through.
func wrapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
