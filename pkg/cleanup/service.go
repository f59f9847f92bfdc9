// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// SessionSweeper expires and prunes platform sessions.
type SessionSweeper interface {
	Sweep(ctx context.Context) error
}

// BucketCleaner drops idle rate-limit buckets.
type BucketCleaner interface {
	Cleanup(maxIdle time.Duration) int
}

// JobPruner removes finished queue jobs past their retention.
type JobPruner interface {
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds retention settings for the cleanup loop.
type Config struct {
	// Interval between cleanup passes.
	Interval time.Duration
	// JobRetention is how long terminal queue jobs are kept.
	JobRetention time.Duration
	// BucketMaxIdle is how long unused rate-limit buckets are kept.
	BucketMaxIdle time.Duration
}

// DefaultConfig returns the standard retention settings.
func DefaultConfig() Config {
	return Config{
		Interval:      time.Hour,
		JobRetention:  7 * 24 * time.Hour,
		BucketMaxIdle: time.Hour,
	}
}

// Service periodically enforces retention policies:
//   - Deactivates expired platform sessions and deletes long-inactive rows
//   - Deletes terminal queue jobs past their retention
//   - Drops idle rate-limit buckets
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config   Config
	sessions SessionSweeper
	limiter  BucketCleaner
	jobs     JobPruner

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service. Any dependency may be nil; its
// pass is skipped.
func NewService(cfg Config, sessions SessionSweeper, limiter BucketCleaner, jobs JobPruner) *Service {
	return &Service{
		config:   cfg,
		sessions: sessions,
		limiter:  limiter,
		jobs:     jobs,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"interval", s.config.Interval,
		"job_retention", s.config.JobRetention)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunAll(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunAll(ctx)
		}
	}
}

// RunAll executes one cleanup pass.
func (s *Service) RunAll(ctx context.Context) {
	s.sweepSessions(ctx)
	s.pruneJobs(ctx)
	s.dropIdleBuckets()
}

func (s *Service) sweepSessions(ctx context.Context) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.Sweep(ctx); err != nil {
		slog.Error("Retention: session sweep failed", "error", err)
	}
}

func (s *Service) pruneJobs(ctx context.Context) {
	if s.jobs == nil {
		return
	}
	cutoff := time.Now().Add(-s.config.JobRetention)
	count, err := s.jobs.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: job pruning failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted finished jobs", "count", count)
	}
}

func (s *Service) dropIdleBuckets() {
	if s.limiter == nil {
		return
	}
	if count := s.limiter.Cleanup(s.config.BucketMaxIdle); count > 0 {
		slog.Info("Retention: dropped idle rate-limit buckets", "count", count)
	}
}
