package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourmoment/yourmoment/pkg/models"
	"github.com/yourmoment/yourmoment/pkg/platformsession"
	"github.com/yourmoment/yourmoment/pkg/queue"
	"github.com/yourmoment/yourmoment/pkg/scraper"
	"github.com/yourmoment/yourmoment/pkg/store"
)

// preparationExecutor fetches the full article for every discovered comment
// and freezes the snapshot the later stages work from.
type preparationExecutor struct {
	o *Orchestrator
}

func (e *preparationExecutor) Execute(ctx context.Context, job *models.QueueJob) *queue.ExecutionResult {
	o := e.o
	proc, err := o.checkpoint(ctx, job.MonitoringProcessID, models.StagePreparation)
	if err != nil {
		return failed(err)
	}
	if proc == nil {
		return completed()
	}

	comments, err := o.comments.ListByProcessAndStatus(ctx, proc.ID, models.CommentStatusDiscovered)
	if err != nil {
		o.failProcess(ctx, proc.ID, err)
		return failed(err)
	}

	// Rows sharing an article id reuse one fetch: the batch holds one row per
	// prompt, all snapshotting the same article.
	details := make(map[string]*scraper.ArticleDetail)

	prepared, errCount, halted := 0, 0, false
	for i := range comments {
		if err := ctx.Err(); err != nil {
			return failed(err)
		}
		if i > 0 {
			ok, err := o.stillRunning(ctx, proc.ID)
			if err != nil {
				return failed(err)
			}
			if !ok {
				halted = true
				break
			}
		}
		if err := e.prepare(ctx, &comments[i], details); err != nil {
			o.log.Warn("Preparation failed for comment",
				"process_id", proc.ID, "comment_id", comments[i].ID,
				"article_id", comments[i].MyMomentArticleID, "error", err)
			errCount++
			continue
		}
		prepared++
	}

	if err := o.processes.AddStageProgress(ctx, proc.ID, models.StagePreparation, prepared, errCount); err != nil {
		o.log.Warn("Failed to record preparation progress", "process_id", proc.ID, "error", err)
	}
	o.log.Info("Preparation stage finished",
		"process_id", proc.ID, "prepared", prepared, "errors", errCount, "halted", halted)

	if halted {
		return completed()
	}
	if err := o.advance(ctx, proc, models.StagePreparation); err != nil {
		return failed(err)
	}
	return completed()
}

// prepare fetches one article with bounded retries and marks the comment
// prepared. Fetched details are shared through the batch cache. After the
// retry budget is spent, the comment fails terminally.
func (e *preparationExecutor) prepare(ctx context.Context, c *models.AIComment, cache map[string]*scraper.ArticleDetail) error {
	o := e.o

	detail := cache[c.MyMomentArticleID]
	var lastErr error
	for attempt := 1; detail == nil && attempt <= o.cfg.MaxRetries; attempt++ {
		err := o.sessions.WithSession(ctx, c.TargetLoginID, func(ctx context.Context, client platformsession.Client, _ *models.PlatformSession) error {
			d, err := client.FetchArticle(ctx, c.MyMomentArticleID)
			if err != nil {
				return err
			}
			detail = d
			return nil
		})
		if err == nil {
			cache[c.MyMomentArticleID] = detail
			break
		}
		lastErr = err

		if _, rerr := o.comments.IncrementRetry(ctx, c.ID); rerr != nil {
			o.log.Warn("Failed to bump retry count", "comment_id", c.ID, "error", rerr)
		}
		if attempt < o.cfg.MaxRetries {
			if serr := o.sleep(ctx, o.retryBackoff(attempt)); serr != nil {
				return serr
			}
		}
	}
	if detail == nil {
		msg := fmt.Sprintf("preparation failed after %d attempts: %v", o.cfg.MaxRetries, lastErr)
		if err := o.comments.MarkFailed(ctx, c.ID, models.CommentStatusDiscovered, msg); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return lastErr
	}

	c.ArticleTitle = detail.Title
	c.ArticleAuthor = detail.Author
	c.ArticleCategory = detail.Category
	c.ArticleURL = detail.URL
	c.ArticleContent = detail.Content
	c.ArticleRawHTML = detail.RawHTML
	c.ArticlePublishedAt = detail.PublishedAt
	c.ArticleScrapedAt = o.now().UTC()

	err := o.comments.MarkPrepared(ctx, c)
	if errors.Is(err, store.ErrNotFound) {
		// Row left discovered state concurrently (stopped or deleted).
		return nil
	}
	return err
}
