package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yourmoment/yourmoment/pkg/backup"
	"github.com/yourmoment/yourmoment/pkg/config"
	"github.com/yourmoment/yourmoment/pkg/crypto"
	"github.com/yourmoment/yourmoment/pkg/database"
	"github.com/yourmoment/yourmoment/pkg/llm"
	"github.com/yourmoment/yourmoment/pkg/monitor"
	"github.com/yourmoment/yourmoment/pkg/platformsession"
	"github.com/yourmoment/yourmoment/pkg/queue"
	"github.com/yourmoment/yourmoment/pkg/ratelimit"
	"github.com/yourmoment/yourmoment/pkg/store"
)

// app bundles the wired components shared by the subcommands.
type app struct {
	cfg     *config.Settings
	db      *database.Client
	vault   *crypto.Vault
	limiter *ratelimit.Limiter
	store   *store.Store

	sessions     *platformsession.Manager
	jobs         *queue.Jobs
	gateway      *llm.Gateway
	orchestrator *monitor.Orchestrator
	backups      *backup.Service
}

// buildApp wires configuration, database, encryption, and the domain
// components. The caller owns Close.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("loading database configuration: %w", err)
	}
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	slog.Info("Connected to PostgreSQL database", "host", dbCfg.Host, "database", dbCfg.Database)

	vault, err := crypto.NewVaultFromEnv(cfg.Security.KeyFile)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("initializing credential vault: %w", err)
	}

	limiter := ratelimit.New()
	st := store.New(dbClient.DB)
	sessions := platformsession.NewManager(st.Sessions, st.Logins, vault, cfg.Scraper, limiter)
	jobs := queue.NewJobs(dbClient.DB)
	gateway := llm.NewGateway(cfg.Monitoring.LLMTimeout, cfg.Monitoring.ProviderMinDelay)

	orchestrator := monitor.New(
		st.Processes,
		st.Comments,
		st.Prompts,
		sessions,
		jobs,
		gateway,
		monitor.NewStoreProviderSource(st.Providers, vault),
		monitor.NewStoreCredentialResolver(st.Logins, vault),
		cfg.Monitoring,
		cfg.Scraper,
	)

	backups := backup.NewService(st.Backups, sessions, st.Logins, cfg.Backup)

	return &app{
		cfg:          cfg,
		db:           dbClient,
		vault:        vault,
		limiter:      limiter,
		store:        st,
		sessions:     sessions,
		jobs:         jobs,
		gateway:      gateway,
		orchestrator: orchestrator,
		backups:      backups,
	}, nil
}

// Close releases the database handle.
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		slog.Error("Error closing database client", "error", err)
	}
}
