package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yourmoment/yourmoment/pkg/models"
)

// BackupRepository persists tracked students and their article versions.
type BackupRepository struct {
	db *sqlx.DB
}

// CreateTrackedStudent registers a student for backup.
func (r *BackupRepository) CreateTrackedStudent(ctx context.Context, ts *models.TrackedStudent) error {
	ts.ID = uuid.New()
	now := time.Now().UTC()
	ts.CreatedAt = now
	ts.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO tracked_students (id, user_id, platform_login_id, mymoment_student_id,
			display_name, notes, is_active, last_backup_at, created_at, updated_at)
		VALUES (:id, :user_id, :platform_login_id, :mymoment_student_id,
			:display_name, :notes, :is_active, :last_backup_at, :created_at, :updated_at)`,
		ts)
	if err != nil {
		return fmt.Errorf("creating tracked student: %w", err)
	}
	return nil
}

// GetTrackedStudent returns a tracked student by id.
func (r *BackupRepository) GetTrackedStudent(ctx context.Context, id uuid.UUID) (*models.TrackedStudent, error) {
	var ts models.TrackedStudent
	err := r.db.GetContext(ctx, &ts, `SELECT * FROM tracked_students WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &ts, nil
}

// ListTrackedStudents returns a user's tracked students, active first.
func (r *BackupRepository) ListTrackedStudents(ctx context.Context, userID uuid.UUID) ([]models.TrackedStudent, error) {
	var students []models.TrackedStudent
	err := r.db.SelectContext(ctx, &students, `
		SELECT * FROM tracked_students WHERE user_id = $1
		ORDER BY is_active DESC, created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing tracked students: %w", err)
	}
	return students, nil
}

// ListActiveTrackedStudents returns every active tracked student across all
// users, for the backup sweep.
func (r *BackupRepository) ListActiveTrackedStudents(ctx context.Context) ([]models.TrackedStudent, error) {
	var students []models.TrackedStudent
	err := r.db.SelectContext(ctx, &students, `
		SELECT * FROM tracked_students WHERE is_active ORDER BY last_backup_at NULLS FIRST`)
	if err != nil {
		return nil, fmt.Errorf("listing active tracked students: %w", err)
	}
	return students, nil
}

// CountTrackedStudents counts a user's active tracked students.
func (r *BackupRepository) CountTrackedStudents(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM tracked_students WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return 0, fmt.Errorf("counting tracked students: %w", err)
	}
	return count, nil
}

// TouchLastBackup stamps the student's backup time.
func (r *BackupRepository) TouchLastBackup(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tracked_students SET last_backup_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touching tracked student: %w", err)
	}
	return nil
}

// DeactivateTrackedStudent stops backing a student up without losing history.
func (r *BackupRepository) DeactivateTrackedStudent(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tracked_students SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivating tracked student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestVersion returns the newest active version of one article, or
// ErrNotFound when the article has never been captured.
func (r *BackupRepository) LatestVersion(ctx context.Context, studentID uuid.UUID, articleID int) (*models.ArticleVersion, error) {
	var v models.ArticleVersion
	err := r.db.GetContext(ctx, &v, `
		SELECT * FROM article_versions
		WHERE tracked_student_id = $1 AND mymoment_article_id = $2 AND is_active
		ORDER BY version_number DESC LIMIT 1`, studentID, articleID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &v, nil
}

// CreateVersion inserts the next version of an article.
func (r *BackupRepository) CreateVersion(ctx context.Context, v *models.ArticleVersion) error {
	v.ID = uuid.New()
	now := time.Now().UTC()
	v.CreatedAt = now
	if v.ScrapedAt.IsZero() {
		v.ScrapedAt = now
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO article_versions (id, user_id, tracked_student_id, mymoment_article_id,
			version_number, article_title, article_url, article_content, article_raw_html,
			article_status, article_visibility, article_category, content_hash,
			is_active, scraped_at, article_modified_at, created_at)
		VALUES (:id, :user_id, :tracked_student_id, :mymoment_article_id,
			:version_number, :article_title, :article_url, :article_content, :article_raw_html,
			:article_status, :article_visibility, :article_category, :content_hash,
			:is_active, :scraped_at, :article_modified_at, :created_at)`,
		v)
	if err != nil {
		return fmt.Errorf("creating article version: %w", err)
	}
	return nil
}

// CountActiveVersions counts one article's active versions.
func (r *BackupRepository) CountActiveVersions(ctx context.Context, studentID uuid.UUID, articleID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM article_versions
		WHERE tracked_student_id = $1 AND mymoment_article_id = $2 AND is_active`,
		studentID, articleID)
	if err != nil {
		return 0, fmt.Errorf("counting article versions: %w", err)
	}
	return count, nil
}

// SoftDeleteOldestVersions deactivates the oldest active versions until only
// keep remain, returning how many were deactivated.
func (r *BackupRepository) SoftDeleteOldestVersions(ctx context.Context, studentID uuid.UUID, articleID, keep int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE article_versions SET is_active = FALSE
		WHERE id IN (
			SELECT id FROM article_versions
			WHERE tracked_student_id = $1 AND mymoment_article_id = $2 AND is_active
			ORDER BY version_number DESC OFFSET $3
		)`, studentID, articleID, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning article versions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListVersions returns an article's active versions, newest first.
func (r *BackupRepository) ListVersions(ctx context.Context, studentID uuid.UUID, articleID int) ([]models.ArticleVersion, error) {
	var versions []models.ArticleVersion
	err := r.db.SelectContext(ctx, &versions, `
		SELECT * FROM article_versions
		WHERE tracked_student_id = $1 AND mymoment_article_id = $2 AND is_active
		ORDER BY version_number DESC`, studentID, articleID)
	if err != nil {
		return nil, fmt.Errorf("listing article versions: %w", err)
	}
	return versions, nil
}
