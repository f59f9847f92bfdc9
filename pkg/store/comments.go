package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/yourmoment/yourmoment/pkg/models"
)

// ErrDuplicateComment is returned when an insert collides with the unique
// (article, process, login, prompt) pipeline key.
var ErrDuplicateComment = errors.New("comment already tracked for this article, process, login, and prompt")

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

// CommentRepository persists AI comments through their pipeline lifecycle.
type CommentRepository struct {
	db *sqlx.DB
}

// Create inserts a discovered comment row. A collision on the pipeline key
// returns ErrDuplicateComment so discovery can skip already-tracked work.
func (r *CommentRepository) Create(ctx context.Context, c *models.AIComment) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if err := c.Validate(); err != nil {
		return err
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO ai_comments (id, mymoment_article_id, mymoment_comment_id,
			user_id, platform_login_id, target_login_id, monitoring_process_id,
			prompt_template_id, llm_provider_id,
			article_title, article_author, article_category, article_task_id,
			article_url, article_content, article_raw_html,
			article_published_at, article_edited_at, article_scraped_at,
			comment_content, ai_model_name, ai_provider_name,
			generation_tokens, generation_time_ms,
			status, created_at, posted_at, failed_at, error_message,
			retry_count, is_active, is_hidden)
		VALUES (:id, :mymoment_article_id, :mymoment_comment_id,
			:user_id, :platform_login_id, :target_login_id, :monitoring_process_id,
			:prompt_template_id, :llm_provider_id,
			:article_title, :article_author, :article_category, :article_task_id,
			:article_url, :article_content, :article_raw_html,
			:article_published_at, :article_edited_at, :article_scraped_at,
			:comment_content, :ai_model_name, :ai_provider_name,
			:generation_tokens, :generation_time_ms,
			:status, :created_at, :posted_at, :failed_at, :error_message,
			:retry_count, :is_active, :is_hidden)`,
		c)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateComment
		}
		return fmt.Errorf("creating comment: %w", err)
	}
	return nil
}

// GetByID returns the comment with the given id.
func (r *CommentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AIComment, error) {
	var c models.AIComment
	err := r.db.GetContext(ctx, &c, `SELECT * FROM ai_comments WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &c, nil
}

// ListByProcessAndStatus returns a process's active comments in one state,
// oldest first so the pipeline is FIFO.
func (r *CommentRepository) ListByProcessAndStatus(ctx context.Context, processID uuid.UUID, status models.CommentStatus) ([]models.AIComment, error) {
	var comments []models.AIComment
	err := r.db.SelectContext(ctx, &comments, `
		SELECT * FROM ai_comments
		WHERE monitoring_process_id = $1 AND status = $2 AND is_active
		ORDER BY created_at`, processID, status)
	if err != nil {
		return nil, fmt.Errorf("listing comments by status: %w", err)
	}
	return comments, nil
}

// ListByUser returns a user's comments, newest first.
func (r *CommentRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.AIComment, error) {
	var comments []models.AIComment
	err := r.db.SelectContext(ctx, &comments, `
		SELECT * FROM ai_comments
		WHERE user_id = $1 AND is_active
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	return comments, nil
}

// transition moves a comment between states atomically, guarding the status
// DAG in SQL. The returned ErrNotFound means the row was not in from-state.
func (r *CommentRepository) transition(ctx context.Context, id uuid.UUID, from, to models.CommentStatus, set string, args ...interface{}) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("illegal comment transition %s → %s", from, to)
	}
	query := fmt.Sprintf(`UPDATE ai_comments SET status = $2%s WHERE id = $1 AND status = $3`, set)
	all := append([]interface{}{id, to, from}, args...)
	res, err := r.db.ExecContext(ctx, query, all...)
	if err != nil {
		return fmt.Errorf("transitioning comment %s → %s: %w", from, to, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPrepared attaches the article snapshot captured during preparation.
func (r *CommentRepository) MarkPrepared(ctx context.Context, c *models.AIComment) error {
	if err := r.transition(ctx, c.ID, models.CommentStatusDiscovered, models.CommentStatusPrepared, `,
		article_title = $4, article_author = $5, article_category = $6,
		article_url = $7, article_content = $8, article_raw_html = $9,
		article_published_at = $10, article_scraped_at = $11`,
		c.ArticleTitle, c.ArticleAuthor, c.ArticleCategory,
		c.ArticleURL, c.ArticleContent, c.ArticleRawHTML,
		c.ArticlePublishedAt, c.ArticleScrapedAt); err != nil {
		return err
	}
	c.Status = models.CommentStatusPrepared
	return nil
}

// MarkGenerated attaches the generated content and generation metadata.
func (r *CommentRepository) MarkGenerated(ctx context.Context, c *models.AIComment) error {
	if c.CommentContent == nil {
		return fmt.Errorf("generated comment requires content")
	}
	if err := r.transition(ctx, c.ID, models.CommentStatusPrepared, models.CommentStatusGenerated, `,
		comment_content = $4, ai_model_name = $5, ai_provider_name = $6,
		llm_provider_id = $7, generation_tokens = $8, generation_time_ms = $9`,
		c.CommentContent, c.AIModelName, c.AIProviderName,
		c.LLMProviderID, c.GenerationTokens, c.GenerationTimeMS); err != nil {
		return err
	}
	c.Status = models.CommentStatusGenerated
	return nil
}

// ClaimForPosting is the at-most-once gate: it stamps the posting login onto
// the row before any network call, guarded on the login still being unset. A
// second claimer gets ErrNotFound and must not post.
func (r *CommentRepository) ClaimForPosting(ctx context.Context, id uuid.UUID, loginID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ai_comments SET platform_login_id = $2
		WHERE id = $1 AND status = 'generated' AND posted_at IS NULL
		AND platform_login_id IS NULL`, id, loginID)
	if err != nil {
		return fmt.Errorf("claiming comment for posting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPosted finalizes a successfully posted comment.
func (r *CommentRepository) MarkPosted(ctx context.Context, id uuid.UUID, platformCommentID string, loginID uuid.UUID, postedAt time.Time) error {
	return r.transition(ctx, id, models.CommentStatusGenerated, models.CommentStatusPosted, `,
		mymoment_comment_id = $4, platform_login_id = $5, posted_at = $6`,
		platformCommentID, loginID, postedAt)
}

// MarkFailed records a terminal failure with its error message.
func (r *CommentRepository) MarkFailed(ctx context.Context, id uuid.UUID, from models.CommentStatus, errMsg string) error {
	return r.transition(ctx, id, from, models.CommentStatusFailed, `,
		error_message = $4, failed_at = NOW()`, errMsg)
}

// IncrementRetry bumps the retry counter and returns the new value.
func (r *CommentRepository) IncrementRetry(ctx context.Context, id uuid.UUID) (int, error) {
	var retries int
	err := r.db.GetContext(ctx, &retries, `
		UPDATE ai_comments SET retry_count = retry_count + 1
		WHERE id = $1 RETURNING retry_count`, id)
	if err != nil {
		return 0, fmt.Errorf("incrementing comment retries: %w", err)
	}
	return retries, nil
}

// SoftDelete deactivates a comment without touching its platform footprint.
func (r *CommentRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ai_comments SET status = 'deleted', is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("soft-deleting comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// HasPostedForArticleLogin reports whether the process already posted a
// comment on the article under the given login. Posting consults this so a
// second pipeline row for the same pair is suppressed instead of published.
func (r *CommentRepository) HasPostedForArticleLogin(ctx context.Context, processID uuid.UUID, articleID string, loginID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM ai_comments
			WHERE monitoring_process_id = $1 AND mymoment_article_id = $2
			AND target_login_id = $3 AND status = 'posted')`,
		processID, articleID, loginID)
	if err != nil {
		return false, fmt.Errorf("checking for prior post: %w", err)
	}
	return exists, nil
}

// ExistsForPipelineKey reports whether an active row already tracks the
// (article, process, login, prompt) combination.
func (r *CommentRepository) ExistsForPipelineKey(ctx context.Context, articleID string, processID, targetLoginID, promptID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM ai_comments
			WHERE mymoment_article_id = $1 AND monitoring_process_id = $2
			AND target_login_id = $3 AND prompt_template_id = $4 AND is_active)`,
		articleID, processID, targetLoginID, promptID)
	if err != nil {
		return false, fmt.Errorf("checking pipeline key: %w", err)
	}
	return exists, nil
}
