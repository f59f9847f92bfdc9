package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yourmoment/yourmoment/pkg/cleanup"
	"github.com/yourmoment/yourmoment/pkg/scheduler"
)

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the periodic jobs: backup sweeps and data retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduler(cmd.Context())
		},
	}
}

func runScheduler(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	retentionCfg := cleanup.DefaultConfig()
	retention := cleanup.NewService(retentionCfg, app.sessions, app.limiter, app.jobs)

	sched := scheduler.New()
	sched.AddEvery("retention", retentionCfg.Interval, retention.RunAll)
	if app.cfg.Backup.Enabled {
		sched.AddEvery("backup-sweep", app.cfg.Backup.Interval, func(ctx context.Context) {
			if err := app.backups.RunSweep(ctx); err != nil {
				slog.Error("Backup sweep failed", "error", err)
			}
		})
	} else {
		slog.Info("Student backups disabled, sweep not scheduled")
	}

	sched.Start(ctx)
	slog.Info("Scheduler started", "jobs", sched.Jobs())

	<-ctx.Done()
	slog.Info("Shutdown signal received")
	sched.Stop()
	return nil
}
