package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CommentStatus is the AIComment pipeline state.
type CommentStatus string

// AIComment states. The legal path is the DAG
// discovered → prepared → generated → posted, with failed and deleted
// reachable from any non-terminal state. Rows never move backwards.
const (
	CommentStatusDiscovered CommentStatus = "discovered"
	CommentStatusPrepared   CommentStatus = "prepared"
	CommentStatusGenerated  CommentStatus = "generated"
	CommentStatusPosted     CommentStatus = "posted"
	CommentStatusFailed     CommentStatus = "failed"
	CommentStatusDeleted    CommentStatus = "deleted"
)

// commentTransitions encodes the forward edges of the status DAG.
var commentTransitions = map[CommentStatus][]CommentStatus{
	CommentStatusDiscovered: {CommentStatusPrepared, CommentStatusFailed, CommentStatusDeleted},
	CommentStatusPrepared:   {CommentStatusGenerated, CommentStatusFailed, CommentStatusDeleted},
	CommentStatusGenerated:  {CommentStatusPosted, CommentStatusFailed, CommentStatusDeleted},
	CommentStatusPosted:     {CommentStatusDeleted},
	CommentStatusFailed:     {CommentStatusDeleted},
	CommentStatusDeleted:    {},
}

// CanTransition reports whether from → to is a legal status move.
func CanTransition(from, to CommentStatus) bool {
	for _, next := range commentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AIComment tracks one (article, login, prompt) triple through the pipeline,
// carrying an immutable article snapshot captured at discovery/preparation.
type AIComment struct {
	ID uuid.UUID `db:"id" json:"id"`

	MyMomentArticleID string  `db:"mymoment_article_id" json:"mymoment_article_id"`
	MyMomentCommentID *string `db:"mymoment_comment_id" json:"mymoment_comment_id,omitempty"`

	UserID              uuid.UUID  `db:"user_id" json:"user_id"`
	PlatformLoginID     *uuid.UUID `db:"platform_login_id" json:"platform_login_id,omitempty"`
	TargetLoginID       uuid.UUID  `db:"target_login_id" json:"target_login_id"`
	MonitoringProcessID uuid.UUID  `db:"monitoring_process_id" json:"monitoring_process_id"`
	PromptTemplateID    uuid.UUID  `db:"prompt_template_id" json:"prompt_template_id"`
	LLMProviderID       *uuid.UUID `db:"llm_provider_id" json:"llm_provider_id,omitempty"`

	// Article snapshot.
	ArticleTitle       string     `db:"article_title" json:"article_title"`
	ArticleAuthor      string     `db:"article_author" json:"article_author"`
	ArticleCategory    *int       `db:"article_category" json:"article_category,omitempty"`
	ArticleTaskID      *int       `db:"article_task_id" json:"article_task_id,omitempty"`
	ArticleURL         string     `db:"article_url" json:"article_url"`
	ArticleContent     string     `db:"article_content" json:"article_content"`
	ArticleRawHTML     string     `db:"article_raw_html" json:"article_raw_html"`
	ArticlePublishedAt *time.Time `db:"article_published_at" json:"article_published_at,omitempty"`
	ArticleEditedAt    *time.Time `db:"article_edited_at" json:"article_edited_at,omitempty"`
	ArticleScrapedAt   time.Time  `db:"article_scraped_at" json:"article_scraped_at"`

	// Comment payload.
	CommentContent   *string `db:"comment_content" json:"comment_content,omitempty"`
	AIModelName      *string `db:"ai_model_name" json:"ai_model_name,omitempty"`
	AIProviderName   *string `db:"ai_provider_name" json:"ai_provider_name,omitempty"`
	GenerationTokens *int    `db:"generation_tokens" json:"generation_tokens,omitempty"`
	GenerationTimeMS *int    `db:"generation_time_ms" json:"generation_time_ms,omitempty"`

	Status       CommentStatus `db:"status" json:"status"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	PostedAt     *time.Time    `db:"posted_at" json:"posted_at,omitempty"`
	FailedAt     *time.Time    `db:"failed_at" json:"failed_at,omitempty"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int           `db:"retry_count" json:"retry_count"`
	IsActive     bool          `db:"is_active" json:"is_active"`
	IsHidden     bool          `db:"is_hidden" json:"is_hidden"`
}

// Validate checks the row-level invariants that the schema also enforces as
// check constraints, so violations surface before the insert round-trip.
func (c *AIComment) Validate() error {
	switch c.Status {
	case CommentStatusDiscovered, CommentStatusPrepared,
		CommentStatusGenerated, CommentStatusPosted,
		CommentStatusFailed, CommentStatusDeleted:
	default:
		return fmt.Errorf("unknown comment status %q", c.Status)
	}

	if (c.Status == CommentStatusGenerated || c.Status == CommentStatusPosted) && c.CommentContent == nil {
		return fmt.Errorf("status %s requires comment content", c.Status)
	}
	if c.Status == CommentStatusPosted {
		if c.PostedAt == nil {
			return fmt.Errorf("posted comment requires posted_at")
		}
		if c.MyMomentCommentID == nil {
			return fmt.Errorf("posted comment requires a platform comment id")
		}
		if c.PlatformLoginID == nil {
			return fmt.Errorf("posted comment requires the posting login")
		}
	}
	if c.Status == CommentStatusFailed && c.ErrorMessage == nil {
		return fmt.Errorf("failed comment requires an error message")
	}
	return nil
}
