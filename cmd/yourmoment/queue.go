package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourmoment/yourmoment/pkg/database"
	"github.com/yourmoment/yourmoment/pkg/queue"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Job queue inspection",
	}
	cmd.AddCommand(newQueueStatusCmd())
	return cmd
}

func newQueueStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending and running job counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbCfg, err := database.LoadConfigFromEnv()
			if err != nil {
				return err
			}
			dbClient, err := database.NewClient(cmd.Context(), dbCfg)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer func() { _ = dbClient.Close() }()

			jobs := queue.NewJobs(dbClient.DB)
			pending, err := jobs.PendingCount(cmd.Context())
			if err != nil {
				return err
			}
			running, err := jobs.RunningCount(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("pending: %d\nrunning: %d\n", pending, running)
			return nil
		},
	}
}
