package monitor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yourmoment/yourmoment/pkg/llm"
	"github.com/yourmoment/yourmoment/pkg/models"
	"github.com/yourmoment/yourmoment/pkg/queue"
	"github.com/yourmoment/yourmoment/pkg/store"
)

// generationExecutor renders prompts from the article snapshot and produces
// the comment text through the provider chain.
type generationExecutor struct {
	o *Orchestrator
}

func (e *generationExecutor) Execute(ctx context.Context, job *models.QueueJob) *queue.ExecutionResult {
	o := e.o
	proc, err := o.checkpoint(ctx, job.MonitoringProcessID, models.StageGeneration)
	if err != nil {
		return failed(err)
	}
	if proc == nil {
		return completed()
	}

	providers, err := o.providers.ProvidersForProcess(ctx, proc)
	if err != nil {
		o.failProcess(ctx, proc.ID, err)
		return failed(err)
	}
	if len(providers) == 0 {
		err := fmt.Errorf("process %s has no usable LLM providers", proc.ID)
		o.failProcess(ctx, proc.ID, err)
		return failed(err)
	}

	comments, err := o.comments.ListByProcessAndStatus(ctx, proc.ID, models.CommentStatusPrepared)
	if err != nil {
		o.failProcess(ctx, proc.ID, err)
		return failed(err)
	}

	generated, errCount, halted := 0, 0, false
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
		if err := e.generate(ctx, providers, &comments[i]); err != nil {
			o.log.Warn("Generation failed for comment",
				"process_id", proc.ID, "comment_id", comments[i].ID, "error", err)
			errCount++
			continue
		}
		generated++
	}

	if err := o.processes.AddStageProgress(ctx, proc.ID, models.StageGeneration, generated, errCount); err != nil {
		o.log.Warn("Failed to record generation progress", "process_id", proc.ID, "error", err)
	}
	o.log.Info("Generation stage finished",
		"process_id", proc.ID, "generated", generated, "errors", errCount, "halted", halted)

	if halted {
		return completed()
	}
	if err := o.advance(ctx, proc, models.StageGeneration); err != nil {
		return failed(err)
	}
	return completed()
}

// generate produces one comment with bounded retries across the whole chain.
// Out-of-bounds output counts as a failed attempt so a retry can produce a
// compliant comment.
func (e *generationExecutor) generate(ctx context.Context, providers []llm.Provider, c *models.AIComment) error {
	o := e.o

	prompt, err := o.prompts.GetByID(ctx, c.PromptTemplateID)
	if err != nil {
		return e.fail(ctx, c, fmt.Sprintf("loading prompt template: %v", err))
	}
	username, err := o.creds.Username(ctx, c.TargetLoginID)
	if err != nil {
		return e.fail(ctx, c, fmt.Sprintf("resolving platform username: %v", err))
	}

	userPrompt, err := RenderPrompt(prompt.UserPromptTemplate, PlaceholderValues{
		ArticleTitle:       c.ArticleTitle,
		ArticleContent:     c.ArticleContent,
		ArticleAuthor:      c.ArticleAuthor,
		ArticleCategory:    c.ArticleCategory,
		ArticlePublishedAt: c.ArticlePublishedAt,
		ArticleURL:         c.ArticleURL,
		PlatformUsername:   username,
	})
	if err != nil {
		return e.fail(ctx, c, fmt.Sprintf("rendering prompt: %v", err))
	}
	req := llm.Request{SystemPrompt: prompt.SystemPrompt, UserPrompt: userPrompt}

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		result, err := o.generator.Generate(ctx, providers, req)
		if err == nil {
			content := EnsureAIPrefix(result.Comment, o.cfg.AIPrefix)
			err = e.checkContent(content)
			if err == nil {
				c.CommentContent = &content
				c.AIModelName = &result.ModelName
				c.AIProviderName = &result.ProviderName
				c.LLMProviderID = &result.ProviderConfigID
				c.GenerationTokens = result.Tokens
				c.GenerationTimeMS = &result.DurationMS

				merr := o.comments.MarkGenerated(ctx, c)
				if errors.Is(merr, store.ErrNotFound) {
					// Row left prepared state concurrently.
					return nil
				}
				return merr
			}
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, rerr := o.comments.IncrementRetry(ctx, c.ID); rerr != nil {
			o.log.Warn("Failed to bump retry count", "comment_id", c.ID, "error", rerr)
		}
		if attempt < o.cfg.MaxRetries {
			if serr := o.sleep(ctx, o.retryBackoff(attempt)); serr != nil {
				return serr
			}
		}
	}
	return e.fail(ctx, c, fmt.Sprintf("generation failed after %d attempts: %v", o.cfg.MaxRetries, lastErr))
}

// Leftover template or markup fragments in model output. The disclosure
// prefix is stripped before matching, its brackets are not a remnant.
var placeholderRemnants = []*regexp.Regexp{
	regexp.MustCompile(`\{[^}]+\}`),
	regexp.MustCompile(`<[^>]+>`),
	regexp.MustCompile(`\[.*\]`),
}

// checkContent enforces the length bounds and quality checks on the comment
// body, measured without the disclosure prefix.
func (e *generationExecutor) checkContent(content string) error {
	body := strings.TrimSpace(strings.TrimPrefix(content, e.o.cfg.AIPrefix))
	if body == "" {
		return fmt.Errorf("generated comment is empty after the AI prefix")
	}

	n := utf8.RuneCountInString(body)
	if n < e.o.cfg.MinCommentLength {
		return fmt.Errorf("generated comment too short: %d < %d characters", n, e.o.cfg.MinCommentLength)
	}
	if n > e.o.cfg.MaxCommentLength {
		return fmt.Errorf("generated comment too long: %d > %d characters", n, e.o.cfg.MaxCommentLength)
	}

	if words := strings.Fields(body); len(words) > 5 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[w] = struct{}{}
		}
		if len(unique)*2 < len(words) {
			return fmt.Errorf("generated comment is repetitive: %d distinct of %d words", len(unique), len(words))
		}
	}
	for _, pattern := range placeholderRemnants {
		if pattern.MatchString(body) {
			return fmt.Errorf("generated comment contains unresolved placeholder text: %q", pattern.FindString(body))
		}
	}
	return nil
}

// fail marks the comment terminally failed and surfaces the message as the
// per-comment error.
func (e *generationExecutor) fail(ctx context.Context, c *models.AIComment, msg string) error {
	if err := e.o.comments.MarkFailed(ctx, c.ID, models.CommentStatusPrepared, msg); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return errors.New(msg)
}
