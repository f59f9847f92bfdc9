// Package backup captures versioned snapshots of tracked students' articles
// through an admin platform login.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/yourmoment/yourmoment/pkg/config"
	"github.com/yourmoment/yourmoment/pkg/models"
	"github.com/yourmoment/yourmoment/pkg/platformsession"
	"github.com/yourmoment/yourmoment/pkg/scraper"
	"github.com/yourmoment/yourmoment/pkg/store"
)

var (
	// ErrStudentLimitReached means the per-user tracked student cap is hit.
	ErrStudentLimitReached = errors.New("tracked student limit reached")

	// ErrAdminLoginRequired means the chosen scraping login is not an admin.
	ErrAdminLoginRequired = errors.New("student backups require an admin platform login")
)

// Store is the backup persistence surface.
type Store interface {
	ListActiveTrackedStudents(ctx context.Context) ([]models.TrackedStudent, error)
	CountTrackedStudents(ctx context.Context, userID uuid.UUID) (int, error)
	CreateTrackedStudent(ctx context.Context, ts *models.TrackedStudent) error
	TouchLastBackup(ctx context.Context, id uuid.UUID) error
	LatestVersion(ctx context.Context, studentID uuid.UUID, articleID int) (*models.ArticleVersion, error)
	CreateVersion(ctx context.Context, v *models.ArticleVersion) error
	CountActiveVersions(ctx context.Context, studentID uuid.UUID, articleID int) (int, error)
	SoftDeleteOldestVersions(ctx context.Context, studentID uuid.UUID, articleID, keep int) (int64, error)
}

// Sessions hands out authenticated platform clients.
type Sessions interface {
	WithSession(ctx context.Context, loginID uuid.UUID, fn func(ctx context.Context, client platformsession.Client, session *models.PlatformSession) error) error
}

// Logins resolves platform logins, for the admin check.
type Logins interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PlatformLogin, error)
}

// Service runs the periodic article backup sweep.
type Service struct {
	backups  Store
	sessions Sessions
	logins   Logins
	cfg      config.BackupConfig

	now func() time.Time
	log *slog.Logger
}

// NewService wires a backup service.
func NewService(backups Store, sessions Sessions, logins Logins, cfg config.BackupConfig) *Service {
	return &Service{
		backups:  backups,
		sessions: sessions,
		logins:   logins,
		cfg:      cfg,
		now:      time.Now,
		log:      slog.With("component", "backup"),
	}
}

// TrackStudent registers a student for backup, enforcing the per-user cap and
// that the scraping login is an admin login.
func (s *Service) TrackStudent(ctx context.Context, ts *models.TrackedStudent) error {
	count, err := s.backups.CountTrackedStudents(ctx, ts.UserID)
	if err != nil {
		return err
	}
	if count >= s.cfg.MaxTrackedStudents {
		return fmt.Errorf("%w (%d)", ErrStudentLimitReached, s.cfg.MaxTrackedStudents)
	}
	if ts.PlatformLoginID != nil {
		login, err := s.logins.GetByID(ctx, *ts.PlatformLoginID)
		if err != nil {
			return err
		}
		if !login.IsAdmin {
			return ErrAdminLoginRequired
		}
	}
	ts.IsActive = true
	return s.backups.CreateTrackedStudent(ctx, ts)
}

// RunSweep backs up every active tracked student once. Per-student failures
// are logged and counted, never fatal to the sweep.
func (s *Service) RunSweep(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	students, err := s.backups.ListActiveTrackedStudents(ctx)
	if err != nil {
		return fmt.Errorf("listing tracked students: %w", err)
	}

	versions, errCount := 0, 0
	for i := range students {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.BackupStudent(ctx, &students[i])
		if err != nil {
			s.log.Warn("Backup failed for tracked student",
				"student_id", students[i].ID, "error", err)
			errCount++
			continue
		}
		versions += n
	}
	s.log.Info("Backup sweep finished",
		"students", len(students), "new_versions", versions, "errors", errCount)
	return nil
}

// BackupStudent captures new versions of one student's articles and returns
// how many versions were written.
func (s *Service) BackupStudent(ctx context.Context, ts *models.TrackedStudent) (int, error) {
	if ts.PlatformLoginID == nil {
		return 0, fmt.Errorf("tracked student %s has no scraping login", ts.ID)
	}

	search := ""
	if ts.DisplayName != nil {
		search = *ts.DisplayName
	}

	created := 0
	err := s.sessions.WithSession(ctx, *ts.PlatformLoginID, func(ctx context.Context, client platformsession.Client, _ *models.PlatformSession) error {
		articles, err := client.ListArticles(ctx, scraper.ArticleFilters{
			Tab:    "alle",
			Search: search,
		}, 0)
		if err != nil {
			return err
		}

		for _, article := range articles {
			// The search filter also matches titles; keep only this
			// student's articles.
			if ts.DisplayName != nil && article.Author != *ts.DisplayName {
				continue
			}
			n, err := s.captureArticle(ctx, client, ts, article)
			if err != nil {
				return err
			}
			created += n
		}
		return nil
	})
	if err != nil {
		return created, err
	}

	if err := s.backups.TouchLastBackup(ctx, ts.ID); err != nil {
		s.log.Warn("Failed to stamp backup time", "student_id", ts.ID, "error", err)
	}
	return created, nil
}

// captureArticle writes a new version when the article changed (or always,
// when content-change detection is off) and prunes beyond the version cap.
func (s *Service) captureArticle(ctx context.Context, client platformsession.Client, ts *models.TrackedStudent, meta scraper.ArticleMetadata) (int, error) {
	articleID, err := strconv.Atoi(meta.ID)
	if err != nil {
		return 0, fmt.Errorf("non-numeric article id %q: %w", meta.ID, err)
	}

	detail, err := client.FetchArticle(ctx, meta.ID)
	if err != nil {
		return 0, fmt.Errorf("fetching article %s: %w", meta.ID, err)
	}
	hash := models.ContentHash(detail.Content)

	nextVersion := 1
	latest, err := s.backups.LatestVersion(ctx, ts.ID, articleID)
	switch {
	case err == nil:
		if s.cfg.ContentChangesOnly && latest.ContentHash == hash {
			return 0, nil
		}
		nextVersion = latest.VersionNumber + 1
	case errors.Is(err, store.ErrNotFound):
	default:
		return 0, err
	}

	status := string(detail.Status)
	var category *string
	if detail.Category != nil {
		c := strconv.Itoa(*detail.Category)
		category = &c
	}
	version := &models.ArticleVersion{
		UserID:            ts.UserID,
		TrackedStudentID:  ts.ID,
		MyMomentArticleID: articleID,
		VersionNumber:     nextVersion,
		ArticleTitle:      &detail.Title,
		ArticleURL:        &detail.URL,
		ArticleContent:    &detail.Content,
		ArticleRawHTML:    &detail.RawHTML,
		ArticleStatus:     &status,
		ArticleCategory:   category,
		ContentHash:       hash,
		IsActive:          true,
		ScrapedAt:         s.now().UTC(),
	}
	if err := s.backups.CreateVersion(ctx, version); err != nil {
		return 0, err
	}

	count, err := s.backups.CountActiveVersions(ctx, ts.ID, articleID)
	if err != nil {
		return 1, err
	}
	if count > s.cfg.MaxVersions {
		pruned, err := s.backups.SoftDeleteOldestVersions(ctx, ts.ID, articleID, s.cfg.MaxVersions)
		if err != nil {
			return 1, err
		}
		s.log.Debug("Pruned old article versions",
			"student_id", ts.ID, "article_id", articleID, "pruned", pruned)
	}
	return 1, nil
}
