package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yourmoment/yourmoment/pkg/models"
	"github.com/yourmoment/yourmoment/pkg/platformsession"
	"github.com/yourmoment/yourmoment/pkg/queue"
	"github.com/yourmoment/yourmoment/pkg/scraper"
	"github.com/yourmoment/yourmoment/pkg/store"
)

// discoveryExecutor lists matching articles per login and creates one
// discovered comment row per (article, login, prompt) combination.
type discoveryExecutor struct {
	o *Orchestrator
}

func (e *discoveryExecutor) Execute(ctx context.Context, job *models.QueueJob) *queue.ExecutionResult {
	o := e.o
	proc, err := o.checkpoint(ctx, job.MonitoringProcessID, models.StageDiscovery)
	if err != nil {
		return failed(err)
	}
	if proc == nil {
		return completed()
	}

	logins, err := o.processes.Logins(ctx, proc.ID)
	if err != nil {
		o.failProcess(ctx, proc.ID, err)
		return failed(err)
	}
	prompts, err := o.processes.Prompts(ctx, proc.ID)
	if err != nil {
		o.failProcess(ctx, proc.ID, err)
		return failed(err)
	}

	discovered, errCount, halted := 0, 0, false
	for _, login := range logins {
		if !login.IsActive {
			continue
		}
		n, loginHalted, err := e.discoverForLogin(ctx, proc, login.PlatformLoginID, prompts)
		discovered += n
		if err != nil {
			o.log.Warn("Discovery failed for login",
				"process_id", proc.ID, "login_id", login.PlatformLoginID, "error", err)
			errCount++
			continue
		}
		if loginHalted {
			halted = true
			break
		}
	}

	if err := o.processes.AddStageProgress(ctx, proc.ID, models.StageDiscovery, discovered, errCount); err != nil {
		o.log.Warn("Failed to record discovery progress", "process_id", proc.ID, "error", err)
	}
	o.log.Info("Discovery stage finished",
		"process_id", proc.ID, "discovered", discovered, "errors", errCount, "halted", halted)

	if halted {
		return completed()
	}
	if err := o.advance(ctx, proc, models.StageDiscovery); err != nil {
		return failed(err)
	}
	return completed()
}

// discoverForLogin lists articles visible to one login and inserts the
// (article x prompt) rows that are not yet tracked. halted reports that the
// process left running state mid-batch.
func (e *discoveryExecutor) discoverForLogin(ctx context.Context, proc *models.MonitoringProcess, loginID uuid.UUID, prompts []models.ProcessPrompt) (created int, halted bool, err error) {
	o := e.o
	tab, category, task, search, sort := filtersFor(proc)

	var articles []scraper.ArticleMetadata
	err = o.sessions.WithSession(ctx, loginID, func(ctx context.Context, client platformsession.Client, _ *models.PlatformSession) error {
		// A tab filter that this login cannot see means the process was
		// configured against a different login's view; skip the login rather
		// than silently discovering from the wrong tab. The skip counts
		// against the discovery error counter.
		if proc.TabFilter != nil && *proc.TabFilter != "" {
			tabs, err := client.ListTabs(ctx)
			if err != nil {
				return err
			}
			if !hasTab(tabs, tab) {
				return fmt.Errorf("tab filter %q not visible to login", tab)
			}
		}

		listed, err := client.ListArticles(ctx, scraper.ArticleFilters{
			Tab:      tab,
			Category: category,
			Task:     task,
			Search:   search,
			Sort:     sort,
		}, o.scraper.PageLimit)
		if err != nil {
			return err
		}
		articles = listed
		return nil
	})
	if err != nil {
		return 0, false, err
	}

	for ai, article := range articles {
		if ai > 0 {
			ok, err := o.stillRunning(ctx, proc.ID)
			if err != nil {
				return created, false, err
			}
			if !ok {
				return created, true, nil
			}
		}
		for _, prompt := range prompts {
			if !prompt.IsActive {
				continue
			}
			exists, err := o.comments.ExistsForPipelineKey(ctx, article.ID, proc.ID, loginID, prompt.PromptTemplateID)
			if err != nil {
				return created, false, err
			}
			if exists {
				continue
			}

			comment := &models.AIComment{
				MyMomentArticleID:   article.ID,
				UserID:              proc.UserID,
				TargetLoginID:       loginID,
				MonitoringProcessID: proc.ID,
				PromptTemplateID:    prompt.PromptTemplateID,
				ArticleTitle:        article.Title,
				ArticleAuthor:       article.Author,
				ArticleCategory:     article.Category,
				ArticleURL:          article.URL,
				ArticlePublishedAt:  article.PublishedAt,
				ArticleScrapedAt:    o.now().UTC(),
				Status:              models.CommentStatusDiscovered,
				IsActive:            true,
				IsHidden:            proc.HideComments,
			}
			if err := o.comments.Create(ctx, comment); err != nil {
				if errors.Is(err, store.ErrDuplicateComment) {
					continue
				}
				return created, false, err
			}
			created++
		}
		// Yield between articles so a cancel lands promptly.
		if err := ctx.Err(); err != nil {
			return created, false, err
		}
	}
	return created, false, nil
}

func hasTab(tabs []scraper.Tab, id string) bool {
	for _, t := range tabs {
		if t.ID == id {
			return true
		}
	}
	return false
}
