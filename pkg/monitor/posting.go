package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourmoment/yourmoment/pkg/models"
	"github.com/yourmoment/yourmoment/pkg/platformsession"
	"github.com/yourmoment/yourmoment/pkg/queue"
	"github.com/yourmoment/yourmoment/pkg/store"
)

// postingExecutor publishes generated comments to the platform. Posting is
// strictly at-most-once: the database claim happens before any network call,
// and a failure after the claim is terminal, never retried.
type postingExecutor struct {
	o *Orchestrator
}

func (e *postingExecutor) Execute(ctx context.Context, job *models.QueueJob) *queue.ExecutionResult {
	o := e.o
	proc, err := o.checkpoint(ctx, job.MonitoringProcessID, models.StagePosting)
	if err != nil {
		return failed(err)
	}
	if proc == nil {
		return completed()
	}

	posted, errCount, halted := 0, 0, false
	if proc.GenerateOnly {
		// Generate-only processes keep their comments in generated state.
		o.log.Info("Skipping posting for generate-only process", "process_id", proc.ID)
	} else {
		posted, errCount, halted, err = e.postAll(ctx, proc)
		if err != nil {
			return failed(err)
		}
	}

	if err := o.processes.AddStageProgress(ctx, proc.ID, models.StagePosting, posted, errCount); err != nil {
		o.log.Warn("Failed to record posting progress", "process_id", proc.ID, "error", err)
	}
	o.log.Info("Posting stage finished",
		"process_id", proc.ID, "posted", posted, "errors", errCount, "halted", halted)

	if halted {
		return completed()
	}
	if err := o.advance(ctx, proc, models.StagePosting); err != nil {
		return failed(err)
	}
	return completed()
}

func (e *postingExecutor) postAll(ctx context.Context, proc *models.MonitoringProcess) (posted, errCount int, halted bool, err error) {
	o := e.o
	comments, err := o.comments.ListByProcessAndStatus(ctx, proc.ID, models.CommentStatusGenerated)
	if err != nil {
		o.failProcess(ctx, proc.ID, err)
		return 0, 0, false, err
	}

	for i := range comments {
		if err := ctx.Err(); err != nil {
			return posted, errCount, false, err
		}
		if i > 0 {
			ok, err := o.stillRunning(ctx, proc.ID)
			if err != nil {
				return posted, errCount, false, err
			}
			if !ok {
				return posted, errCount, true, nil
			}
		}
		if posted+errCount > 0 && o.scraper.RateLimitDelay > 0 {
			if err := o.sleep(ctx, o.scraper.RateLimitDelay); err != nil {
				return posted, errCount, false, err
			}
		}

		switch err := e.post(ctx, &comments[i]); {
		case err == nil:
			posted++
		case errors.Is(err, store.ErrNotFound):
			// Another worker claimed the row; neither posted nor an error.
		default:
			o.log.Warn("Posting failed for comment",
				"process_id", proc.ID, "comment_id", comments[i].ID, "error", err)
			errCount++
		}
	}
	return posted, errCount, false, nil
}

// post claims one generated comment and publishes it under its target login.
func (e *postingExecutor) post(ctx context.Context, c *models.AIComment) error {
	o := e.o
	if c.CommentContent == nil {
		return fmt.Errorf("comment %s is generated but has no content", c.ID)
	}

	// One post per (article, login) pair within a process: a sibling row that
	// already went out, typically from another prompt, suppresses this one.
	dup, err := o.comments.HasPostedForArticleLogin(ctx, c.MonitoringProcessID, c.MyMomentArticleID, c.TargetLoginID)
	if err != nil {
		return err
	}
	if dup {
		msg := "duplicate post suppressed"
		if err := o.comments.MarkFailed(ctx, c.ID, models.CommentStatusGenerated, msg); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return errors.New(msg)
	}

	// The claim is the point of no return: once it succeeds, this worker owns
	// the post and any later failure is terminal.
	if err := o.comments.ClaimForPosting(ctx, c.ID, c.TargetLoginID); err != nil {
		return err
	}

	var platformCommentID string
	err = o.sessions.WithSession(ctx, c.TargetLoginID, func(ctx context.Context, client platformsession.Client, _ *models.PlatformSession) error {
		id, err := client.PostComment(ctx, c.MyMomentArticleID, *c.CommentContent, "", c.ID.String())
		if err != nil {
			return err
		}
		platformCommentID = id
		return nil
	})
	if err != nil {
		msg := fmt.Sprintf("posting failed: %v", err)
		if ferr := o.comments.MarkFailed(ctx, c.ID, models.CommentStatusGenerated, msg); ferr != nil && !errors.Is(ferr, store.ErrNotFound) {
			o.log.Error("Failed to mark claimed comment as failed",
				"comment_id", c.ID, "error", ferr)
		}
		return errors.New(msg)
	}

	if err := o.comments.MarkPosted(ctx, c.ID, platformCommentID, c.TargetLoginID, o.now().UTC()); err != nil {
		// The platform accepted the comment; losing the row update must not
		// trigger a second post.
		o.log.Error("Comment posted but row update failed",
			"comment_id", c.ID, "platform_comment_id", platformCommentID, "error", err)
		return err
	}
	return nil
}
