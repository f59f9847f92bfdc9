// Package platformsession manages authenticated myMoment sessions: one live
// session per login, reused until expiry, refreshed near end of life, and
// serialized through a per-login mutex.
package platformsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourmoment/yourmoment/pkg/config"
	"github.com/yourmoment/yourmoment/pkg/crypto"
	"github.com/yourmoment/yourmoment/pkg/models"
	"github.com/yourmoment/yourmoment/pkg/scraper"
	"github.com/yourmoment/yourmoment/pkg/store"
)

// InactiveRetention is how long deactivated session rows are kept before the
// sweep deletes them.
const InactiveRetention = 30 * 24 * time.Hour

// Client is the authenticated platform surface handed to callers.
// *scraper.Session satisfies it.
type Client interface {
	Authenticate(ctx context.Context, username, password string) error
	CheckAuthenticated(ctx context.Context) (bool, error)
	RestoreCookies(cookies map[string]string) error
	Cookies() map[string]string
	ListTabs(ctx context.Context) ([]scraper.Tab, error)
	ListArticles(ctx context.Context, filters scraper.ArticleFilters, limit int) ([]scraper.ArticleMetadata, error)
	FetchArticle(ctx context.Context, articleID string) (*scraper.ArticleDetail, error)
	PostComment(ctx context.Context, articleID, text, highlight, ref string) (string, error)
	Close()
}

// SessionStore is the persistence surface the manager needs.
type SessionStore interface {
	GetActiveByLogin(ctx context.Context, loginID uuid.UUID) (*models.PlatformSession, error)
	Create(ctx context.Context, session *models.PlatformSession) error
	Renew(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	TouchAccessed(ctx context.Context, id uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	DeactivateExpired(ctx context.Context) (int64, error)
	DeleteInactiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LoginStore resolves platform logins and their encrypted credentials.
type LoginStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PlatformLogin, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
}

// Manager hands out authenticated clients, one login at a time.
type Manager struct {
	sessions SessionStore
	logins   LoginStore
	vault    *crypto.Vault
	cfg      config.ScraperConfig

	// newClient builds an unauthenticated platform client. Swappable in tests.
	newClient func() Client

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex

	now func() time.Time
	log *slog.Logger
}

// NewManager wires a manager over the real scraper.
func NewManager(sessions SessionStore, logins LoginStore, vault *crypto.Vault, cfg config.ScraperConfig, limiter scraper.DomainLimiter) *Manager {
	return &Manager{
		sessions: sessions,
		logins:   logins,
		vault:    vault,
		cfg:      cfg,
		newClient: func() Client {
			return scraper.NewSession(cfg, limiter)
		},
		locks: make(map[uuid.UUID]*sync.Mutex),
		now:   time.Now,
		log:   slog.With("component", "platformsession"),
	}
}

// loginLock returns the mutex serializing all session work for one login.
func (m *Manager) loginLock(loginID uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[loginID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[loginID] = lock
	}
	return lock
}

// WithSession runs fn with an authenticated client for the login, holding the
// login's mutex for the duration so concurrent stages never share cookies
// mid-flight.
func (m *Manager) WithSession(ctx context.Context, loginID uuid.UUID, fn func(ctx context.Context, client Client, session *models.PlatformSession) error) error {
	lock := m.loginLock(loginID)
	lock.Lock()
	defer lock.Unlock()

	client, session, err := m.acquire(ctx, loginID)
	if err != nil {
		return err
	}
	defer client.Close()

	return fn(ctx, client, session)
}

// acquire returns an authenticated client, reusing the login's live session
// when possible. Callers must hold the login lock.
func (m *Manager) acquire(ctx context.Context, loginID uuid.UUID) (Client, *models.PlatformSession, error) {
	now := m.now()

	existing, err := m.sessions.GetActiveByLogin(ctx, loginID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("loading session for login %s: %w", loginID, err)
	}

	if existing != nil && existing.IsUsable(now) {
		client, reuseErr := m.reuse(ctx, existing, now)
		if reuseErr == nil {
			return client, existing, nil
		}
		// Reuse failed: the cookies went stale server-side. Deactivate and
		// fall through to a fresh login.
		m.log.Warn("Stored platform session unusable, re-authenticating",
			"login_id", loginID, "error", reuseErr)
		_ = m.sessions.Deactivate(ctx, existing.ID)
	}

	return m.login(ctx, loginID)
}

// reuse restores a stored session's cookies and renews it when it is inside
// the refresh window.
func (m *Manager) reuse(ctx context.Context, session *models.PlatformSession, now time.Time) (Client, error) {
	var cookies map[string]string
	if err := m.vault.DecryptSessionData(session.EncryptedSessionData, &cookies); err != nil {
		return nil, fmt.Errorf("decrypting session data: %w", err)
	}

	client := m.newClient()
	if err := client.RestoreCookies(cookies); err != nil {
		client.Close()
		return nil, err
	}

	if session.RemainingLife(now) <= m.cfg.RefreshThreshold {
		authed, err := client.CheckAuthenticated(ctx)
		if err != nil {
			client.Close()
			return nil, err
		}
		if !authed {
			client.Close()
			return nil, fmt.Errorf("platform rejected stored cookies")
		}
		session.ExpiresAt = now.Add(m.cfg.SessionTTL)
		if err := m.sessions.Renew(ctx, session.ID, session.ExpiresAt); err != nil {
			client.Close()
			return nil, err
		}
		m.log.Debug("Renewed platform session", "session_id", session.ID)
	} else {
		_ = m.sessions.TouchAccessed(ctx, session.ID)
	}
	return client, nil
}

// login authenticates from scratch and persists the resulting session.
func (m *Manager) login(ctx context.Context, loginID uuid.UUID) (Client, *models.PlatformSession, error) {
	login, err := m.logins.GetByID(ctx, loginID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading login %s: %w", loginID, err)
	}
	if !login.IsActive {
		return nil, nil, fmt.Errorf("login %s is inactive", loginID)
	}

	username, password, err := m.vault.DecryptCredentials(login.EncryptedUsername, login.EncryptedPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypting credentials for login %s: %w", loginID, err)
	}

	client := m.newClient()
	if err := client.Authenticate(ctx, username, password); err != nil {
		client.Close()
		return nil, nil, err
	}

	encrypted, err := m.vault.EncryptSessionData(client.Cookies())
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("encrypting session data: %w", err)
	}

	session := &models.PlatformSession{
		PlatformLoginID:      loginID,
		EncryptedSessionData: encrypted,
		ExpiresAt:            m.now().Add(m.cfg.SessionTTL),
		IsActive:             true,
		LastAccessed:         m.now(),
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		client.Close()
		return nil, nil, err
	}
	_ = m.logins.TouchLastUsed(ctx, loginID)

	m.log.Info("Created platform session", "login_id", loginID, "expires_at", session.ExpiresAt)
	return client, session, nil
}

// Invalidate deactivates the login's live session so the next acquisition
// performs a fresh login.
func (m *Manager) Invalidate(ctx context.Context, loginID uuid.UUID) error {
	lock := m.loginLock(loginID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.sessions.GetActiveByLogin(ctx, loginID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return m.sessions.Deactivate(ctx, session.ID)
}

// Sweep deactivates expired sessions and deletes inactive rows past the
// retention window. Meant to run hourly.
func (m *Manager) Sweep(ctx context.Context) error {
	expired, err := m.sessions.DeactivateExpired(ctx)
	if err != nil {
		return err
	}
	deleted, err := m.sessions.DeleteInactiveOlderThan(ctx, m.now().Add(-InactiveRetention))
	if err != nil {
		return err
	}
	if expired > 0 || deleted > 0 {
		m.log.Info("Swept platform sessions", "expired", expired, "deleted", deleted)
	}
	return nil
}
