package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// TrackedStudent identifies a myMoment student whose articles are backed up.
// Only admin logins may be used for the scraping.
type TrackedStudent struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	UserID            uuid.UUID  `db:"user_id" json:"user_id"`
	PlatformLoginID   *uuid.UUID `db:"platform_login_id" json:"platform_login_id,omitempty"`
	MyMomentStudentID int        `db:"mymoment_student_id" json:"mymoment_student_id"`
	DisplayName       *string    `db:"display_name" json:"display_name,omitempty"`
	Notes             *string    `db:"notes" json:"notes,omitempty"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	LastBackupAt      *time.Time `db:"last_backup_at" json:"last_backup_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// ArticleVersion is one snapshot of a tracked student's article. Versions
// are numbered sequentially per article; the content hash detects changes.
type ArticleVersion struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	UserID            uuid.UUID  `db:"user_id" json:"user_id"`
	TrackedStudentID  uuid.UUID  `db:"tracked_student_id" json:"tracked_student_id"`
	MyMomentArticleID int        `db:"mymoment_article_id" json:"mymoment_article_id"`
	VersionNumber     int        `db:"version_number" json:"version_number"`
	ArticleTitle      *string    `db:"article_title" json:"article_title,omitempty"`
	ArticleURL        *string    `db:"article_url" json:"article_url,omitempty"`
	ArticleContent    *string    `db:"article_content" json:"article_content,omitempty"`
	ArticleRawHTML    *string    `db:"article_raw_html" json:"article_raw_html,omitempty"`
	ArticleStatus     *string    `db:"article_status" json:"article_status,omitempty"`
	ArticleVisibility *string    `db:"article_visibility" json:"article_visibility,omitempty"`
	ArticleCategory   *string    `db:"article_category" json:"article_category,omitempty"`
	ContentHash       string     `db:"content_hash" json:"content_hash"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	ScrapedAt         time.Time  `db:"scraped_at" json:"scraped_at"`
	ArticleModifiedAt *time.Time `db:"article_modified_at" json:"article_modified_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// ContentHash returns the hex SHA-256 of an article's plain-text content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
