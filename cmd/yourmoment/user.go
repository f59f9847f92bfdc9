package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourmoment/yourmoment/pkg/config"
	"github.com/yourmoment/yourmoment/pkg/database"
	"github.com/yourmoment/yourmoment/pkg/services"
	"github.com/yourmoment/yourmoment/pkg/store"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User administration",
	}
	cmd.AddCommand(newUserCreateCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a platform user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dbCfg, err := database.LoadConfigFromEnv()
			if err != nil {
				return err
			}
			dbClient, err := database.NewClient(cmd.Context(), dbCfg)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer func() { _ = dbClient.Close() }()

			users := services.NewUserService(store.New(dbClient.DB).Users, cfg.App)
			user, err := users.Register(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			cmd.Printf("created user %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (min 8 characters)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
