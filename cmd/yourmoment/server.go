package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yourmoment/yourmoment/pkg/api"
	"github.com/yourmoment/yourmoment/pkg/cleanup"
	"github.com/yourmoment/yourmoment/pkg/services"
)

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	// Service layer over the repositories.
	userSvc := services.NewUserService(app.store.Users, app.cfg.App)
	loginSvc := services.NewLoginService(app.store.Logins, app.vault)
	providerSvc := services.NewProviderService(app.store.Providers, app.vault)
	promptSvc := services.NewPromptService(app.store.Prompts)
	processSvc := services.NewProcessService(app.store.Processes, app.store.Logins,
		app.store.Prompts, app.store.Providers, app.orchestrator, app.cfg.Monitoring)
	commentSvc := services.NewCommentService(app.store.Comments)
	backupSvc := services.NewBackupService(app.store.Backups, app.backups, app.store.Logins)

	// Background retention runs alongside the API pod.
	retention := cleanup.NewService(cleanup.DefaultConfig(), app.sessions, app.limiter, app.jobs)
	retention.Start(ctx)
	defer retention.Stop()

	server := api.NewServer(app.cfg.App, api.Deps{
		Users:     userSvc,
		Logins:    loginSvc,
		Providers: providerSvc,
		Prompts:   promptSvc,
		Processes: processSvc,
		Comments:  commentSvc,
		Backups:   backupSvc,
		DB:        app.db,
		Limiter:   app.limiter,
	})

	slog.Info("Server started", "host", app.cfg.App.Host, "port", app.cfg.App.Port)
	return server.Run(ctx)
}
