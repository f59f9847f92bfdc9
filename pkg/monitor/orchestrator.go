// Package monitor is the monitoring orchestrator: the discovery, preparation,
// generation, and posting stage executors, process lifecycle transitions, and
// the duration budget enforcement between stages.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yourmoment/yourmoment/pkg/config"
	"github.com/yourmoment/yourmoment/pkg/llm"
	"github.com/yourmoment/yourmoment/pkg/models"
	"github.com/yourmoment/yourmoment/pkg/platformsession"
	"github.com/yourmoment/yourmoment/pkg/queue"
	"github.com/yourmoment/yourmoment/pkg/store"
)

// ProcessStore is the monitoring process persistence surface.
type ProcessStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.MonitoringProcess, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.ProcessStatus) error
	SetStageJob(ctx context.Context, id uuid.UUID, stage models.Stage, jobID uuid.UUID) error
	AddStageProgress(ctx context.Context, id uuid.UUID, stage models.Stage, processed, errors int) error
	Logins(ctx context.Context, processID uuid.UUID) ([]models.ProcessLogin, error)
	Prompts(ctx context.Context, processID uuid.UUID) ([]models.ProcessPrompt, error)
}

// CommentStore is the AI comment persistence surface.
type CommentStore interface {
	Create(ctx context.Context, c *models.AIComment) error
	ListByProcessAndStatus(ctx context.Context, processID uuid.UUID, status models.CommentStatus) ([]models.AIComment, error)
	MarkPrepared(ctx context.Context, c *models.AIComment) error
	MarkGenerated(ctx context.Context, c *models.AIComment) error
	ClaimForPosting(ctx context.Context, id uuid.UUID, loginID uuid.UUID) error
	MarkPosted(ctx context.Context, id uuid.UUID, platformCommentID string, loginID uuid.UUID, postedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, from models.CommentStatus, errMsg string) error
	IncrementRetry(ctx context.Context, id uuid.UUID) (int, error)
	ExistsForPipelineKey(ctx context.Context, articleID string, processID, targetLoginID, promptID uuid.UUID) (bool, error)
	HasPostedForArticleLogin(ctx context.Context, processID uuid.UUID, articleID string, loginID uuid.UUID) (bool, error)
}

// PromptStore resolves prompt templates.
type PromptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PromptTemplate, error)
}

// Sessions hands out authenticated platform clients, one login at a time.
type Sessions interface {
	WithSession(ctx context.Context, loginID uuid.UUID, fn func(ctx context.Context, client platformsession.Client, session *models.PlatformSession) error) error
}

// JobQueue places stage jobs on the queue and revokes the ones a stopped
// process no longer needs.
type JobQueue interface {
	Enqueue(ctx context.Context, stage models.Stage, processID uuid.UUID) (*models.QueueJob, error)
	RevokeForProcess(ctx context.Context, processID uuid.UUID) (int64, error)
}

// JobCanceller cancels the context of a job running on this pod. Wired by the
// worker command; nil on pods without a pool.
type JobCanceller interface {
	CancelJob(jobID uuid.UUID) bool
}

// Generator runs comment generation against a provider chain.
type Generator interface {
	Generate(ctx context.Context, providers []llm.Provider, req llm.Request) (*llm.Result, error)
}

// ProviderSource resolves the provider chain for one process: the process's
// pinned provider first, then the owner's remaining active providers.
type ProviderSource interface {
	ProvidersForProcess(ctx context.Context, proc *models.MonitoringProcess) ([]llm.Provider, error)
}

// CredentialResolver exposes the decrypted platform username for the
// platform_username placeholder.
type CredentialResolver interface {
	Username(ctx context.Context, loginID uuid.UUID) (string, error)
}

// Orchestrator bundles the stage executors' dependencies and owns the
// process lifecycle.
type Orchestrator struct {
	processes ProcessStore
	comments  CommentStore
	prompts   PromptStore
	sessions  Sessions
	jobs      JobQueue
	generator Generator
	providers ProviderSource
	creds     CredentialResolver
	canceller JobCanceller

	cfg     config.MonitoringConfig
	scraper config.ScraperConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	log   *slog.Logger
}

// New wires an orchestrator.
func New(
	processes ProcessStore,
	comments CommentStore,
	prompts PromptStore,
	sessions Sessions,
	jobs JobQueue,
	generator Generator,
	providers ProviderSource,
	creds CredentialResolver,
	cfg config.MonitoringConfig,
	scraperCfg config.ScraperConfig,
) *Orchestrator {
	return &Orchestrator{
		processes: processes,
		comments:  comments,
		prompts:   prompts,
		sessions:  sessions,
		jobs:      jobs,
		generator: generator,
		providers: providers,
		creds:     creds,
		cfg:       cfg,
		scraper:   scraperCfg,
		now:       time.Now,
		sleep:     sleepCtx,
		log:       slog.With("component", "monitor"),
	}
}

// SetJobCanceller attaches the worker pool's cancel registry so stopping a
// process aborts its in-flight stage jobs on this pod.
func (o *Orchestrator) SetJobCanceller(c JobCanceller) {
	o.canceller = c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Executors returns the stage executor registry for the worker pool.
func (o *Orchestrator) Executors() map[models.Stage]queue.StageExecutor {
	return map[models.Stage]queue.StageExecutor{
		models.StageDiscovery:   &discoveryExecutor{o},
		models.StagePreparation: &preparationExecutor{o},
		models.StageGeneration:  &generationExecutor{o},
		models.StagePosting:     &postingExecutor{o},
	}
}

// StartProcess validates a created process and launches its first discovery
// cycle.
func (o *Orchestrator) StartProcess(ctx context.Context, processID uuid.UUID) error {
	proc, err := o.processes.GetByID(ctx, processID)
	if err != nil {
		return err
	}
	if !proc.CanStart() {
		return fmt.Errorf("process %s cannot start from status %s", processID, proc.Status)
	}

	logins, err := o.processes.Logins(ctx, processID)
	if err != nil {
		return err
	}
	if len(logins) == 0 {
		return fmt.Errorf("process %s has no platform logins attached", processID)
	}
	prompts, err := o.processes.Prompts(ctx, processID)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return fmt.Errorf("process %s has no prompt templates attached", processID)
	}

	if err := o.processes.TransitionStatus(ctx, processID, models.ProcessStatusCreated, models.ProcessStatusRunning); err != nil {
		return fmt.Errorf("starting process %s: %w", processID, err)
	}

	if err := o.enqueueStage(ctx, processID, models.StageDiscovery); err != nil {
		// The process is running but no job landed; fail it so it does not
		// hang forever in running.
		_ = o.processes.TransitionStatus(ctx, processID, models.ProcessStatusRunning, models.ProcessStatusFailed)
		return err
	}

	o.log.Info("Monitoring process started", "process_id", processID)
	return nil
}

// StopProcess halts a running process at the user's request. The terminal
// status is stopped, never completed or failed. Pending stage jobs are
// revoked and in-flight jobs on this pod are cancelled; jobs running on other
// pods halt at their next record boundary when they re-read the status.
func (o *Orchestrator) StopProcess(ctx context.Context, processID uuid.UUID) error {
	err := o.processes.TransitionStatus(ctx, processID, models.ProcessStatusRunning, models.ProcessStatusStopped)
	if errors.Is(err, store.ErrNotFound) {
		// Allow stopping a process that never started.
		err = o.processes.TransitionStatus(ctx, processID, models.ProcessStatusCreated, models.ProcessStatusStopped)
	}
	if err != nil {
		return fmt.Errorf("stopping process %s: %w", processID, err)
	}

	if n, err := o.jobs.RevokeForProcess(ctx, processID); err != nil {
		o.log.Warn("Failed to revoke pending jobs for stopped process",
			"process_id", processID, "error", err)
	} else if n > 0 {
		o.log.Info("Revoked pending stage jobs", "process_id", processID, "count", n)
	}

	if o.canceller != nil {
		if proc, err := o.processes.GetByID(ctx, processID); err == nil {
			for _, jobID := range proc.StageJobIDs() {
				if o.canceller.CancelJob(jobID) {
					o.log.Info("Cancelled in-flight stage job",
						"process_id", processID, "job_id", jobID)
				}
			}
		}
	}

	o.log.Info("Monitoring process stopped", "process_id", processID)
	return nil
}

// enqueueStage places a stage job and records its id on the process.
func (o *Orchestrator) enqueueStage(ctx context.Context, processID uuid.UUID, stage models.Stage) error {
	job, err := o.jobs.Enqueue(ctx, stage, processID)
	if err != nil {
		return fmt.Errorf("enqueueing %s for process %s: %w", stage, processID, err)
	}
	if err := o.processes.SetStageJob(ctx, processID, stage, job.ID); err != nil {
		o.log.Warn("Failed to record stage job id", "process_id", processID, "stage", stage, "error", err)
	}
	return nil
}

// checkpoint loads the process at a stage boundary and decides whether the
// stage may run. It returns the process when the stage should proceed, or nil
// when the pipeline must halt (stopped, completed, or out of budget).
func (o *Orchestrator) checkpoint(ctx context.Context, processID uuid.UUID, stage models.Stage) (*models.MonitoringProcess, error) {
	proc, err := o.processes.GetByID(ctx, processID)
	if err != nil {
		return nil, err
	}
	if !proc.IsRunning() {
		o.log.Info("Skipping stage for non-running process",
			"process_id", processID, "stage", stage, "status", proc.Status)
		return nil, nil
	}
	if proc.DeadlineExceeded(o.now()) {
		o.completeProcess(ctx, processID)
		return nil, nil
	}
	return proc, nil
}

// stillRunning re-reads the process between records so a stop or an expired
// budget halts the batch loop instead of waiting for the next stage boundary.
// It returns false when the loop must stop.
func (o *Orchestrator) stillRunning(ctx context.Context, processID uuid.UUID) (bool, error) {
	proc, err := o.processes.GetByID(ctx, processID)
	if err != nil {
		return false, err
	}
	if !proc.IsRunning() {
		o.log.Info("Halting stage mid-batch for non-running process",
			"process_id", processID, "status", proc.Status)
		return false, nil
	}
	if proc.DeadlineExceeded(o.now()) {
		o.completeProcess(ctx, processID)
		return false, nil
	}
	return true, nil
}

// completeProcess ends a process whose duration budget is exhausted.
func (o *Orchestrator) completeProcess(ctx context.Context, processID uuid.UUID) {
	err := o.processes.TransitionStatus(ctx, processID, models.ProcessStatusRunning, models.ProcessStatusCompleted)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		o.log.Error("Failed to complete process", "process_id", processID, "error", err)
		return
	}
	if err == nil {
		o.log.Info("Monitoring process completed", "process_id", processID)
	}
}

// failProcess ends a process on an unrecoverable stage error.
func (o *Orchestrator) failProcess(ctx context.Context, processID uuid.UUID, cause error) {
	err := o.processes.TransitionStatus(ctx, processID, models.ProcessStatusRunning, models.ProcessStatusFailed)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		o.log.Error("Failed to mark process failed", "process_id", processID, "error", err)
		return
	}
	if err == nil {
		o.log.Error("Monitoring process failed", "process_id", processID, "cause", cause)
	}
}

// advance chains the pipeline: enqueue the next stage, or begin the next
// discovery cycle after posting (or after generation for generate-only
// processes) while budget remains.
func (o *Orchestrator) advance(ctx context.Context, proc *models.MonitoringProcess, current models.Stage) error {
	next := models.NextStage(current)
	if current == models.StageGeneration && proc.GenerateOnly {
		next = ""
	}
	if next == "" {
		// Cycle finished. Re-check the budget before starting another round.
		fresh, err := o.processes.GetByID(ctx, proc.ID)
		if err != nil {
			return err
		}
		if !fresh.IsRunning() {
			return nil
		}
		if fresh.DeadlineExceeded(o.now()) {
			o.completeProcess(ctx, proc.ID)
			return nil
		}
		return o.enqueueStage(ctx, proc.ID, models.StageDiscovery)
	}
	return o.enqueueStage(ctx, proc.ID, next)
}

// retryBackoff returns the exponential backoff delay before retry n (1-based).
func (o *Orchestrator) retryBackoff(attempt int) time.Duration {
	d := o.cfg.RetryBackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
