package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourmoment/yourmoment/pkg/queue"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the stage pipeline worker pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	podID := resolvePodID()

	// Recover jobs this pod abandoned in a previous life.
	if err := queue.CleanupStartupOrphans(ctx, app.jobs, podID); err != nil {
		slog.Error("Startup orphan cleanup failed", "error", err)
		// Non-fatal, the periodic scan will retry.
	}

	pool := queue.NewWorkerPool(podID, app.jobs, app.cfg.Queue, app.orchestrator.Executors())
	// Stops issued on this pod abort in-flight stage jobs immediately.
	app.orchestrator.SetJobCanceller(pool)
	if err := pool.Start(ctx); err != nil {
		return err
	}

	slog.Info("Worker started",
		"pod_id", podID,
		"workers", app.cfg.Queue.WorkerCount,
		"max_concurrent", app.cfg.Queue.MaxConcurrentJobs)

	<-ctx.Done()
	slog.Info("Shutdown signal received")

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-time.After(app.cfg.Queue.GracefulShutdownTimeout):
		slog.Warn("Worker pool shutdown timeout exceeded")
	}
	return nil
}
