// Package scheduler runs the periodic background jobs (backup sweeps,
// retention passes) on a cron runner.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is one periodic job. The context is cancelled when the scheduler
// stops.
type JobFunc func(ctx context.Context)

// Scheduler wraps a cron runner with panic recovery and overlap protection.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger

	names []string

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. Jobs that are still running when their next tick
// fires are skipped, not stacked.
func New() *Scheduler {
	log := slog.With("component", "scheduler")
	logger := &cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		log: log,
	}
}

// AddEvery registers a job that runs at a fixed interval.
func (s *Scheduler) AddEvery(name string, every time.Duration, fn JobFunc) {
	s.names = append(s.names, name)
	s.cron.Schedule(cron.Every(every), cron.FuncJob(func() {
		start := time.Now()
		s.log.Debug("Scheduled job starting", "job", name)
		fn(s.runCtx())
		s.log.Debug("Scheduled job finished", "job", name, "duration", time.Since(start))
	}))
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	return append([]string(nil), s.names...)
}

func (s *Scheduler) runCtx() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// Start launches the cron runner.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.log.Info("Scheduler started", "jobs", s.names)
}

// Stop halts the runner and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

// cronLogger adapts slog to the cron logging interface.
type cronLogger struct {
	log *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(fmt.Sprintf("cron: %s", msg), keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{"error", err}, keysAndValues...)
	l.log.Error(fmt.Sprintf("cron: %s", msg), args...)
}
