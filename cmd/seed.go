package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func seedCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the administrator account if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cfg.AdminPassword == "" {
				return errors.New("ADMIN_PASSWORD must be set to seed the admin account")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			created, err := a.accounts.SeedAdmin(cmd.Context(), name, cfg.AdminEmail, cfg.AdminPassword)
			if err != nil {
				return err
			}
			if created {
				logger.Info("admin user created", zap.String("email", cfg.AdminEmail))
			} else {
				logger.Info("admin user already exists", zap.String("email", cfg.AdminEmail))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "Admin", "display name of the admin account")
	return cmd
}
