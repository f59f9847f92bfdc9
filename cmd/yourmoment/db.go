package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/yourmoment/yourmoment/pkg/database"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	cmd.AddCommand(newDBMigrateCmd(), newDBPingCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := database.LoadConfigFromEnv()
			if err != nil {
				return err
			}
			db, err := sqlx.Open("pgx", cfg.DSN())
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer func() { _ = db.Close() }()

			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("pinging database: %w", err)
			}
			if err := database.RunMigrations(db, cfg.Database); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		},
	}
}

func newDBPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check database connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := database.LoadConfigFromEnv()
			if err != nil {
				return err
			}
			db, err := sqlx.Open("pgx", cfg.DSN())
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer func() { _ = db.Close() }()

			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("pinging database: %w", err)
			}
			cmd.Printf("database %s@%s:%d reachable\n", cfg.Database, cfg.Host, cfg.Port)
			return nil
		},
	}
}
