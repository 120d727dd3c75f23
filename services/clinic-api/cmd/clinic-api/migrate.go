package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/md-rashed-zaman/clinicapi/libs/config"
	"github.com/md-rashed-zaman/clinicapi/libs/db"
	"github.com/md-rashed-zaman/clinicapi/libs/runtime"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/storage"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.BindFlag("DATABASE_URL", cmd.Flags().Lookup("database-url"))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := runtime.SignalContext(cmd.Context())
			defer stop()
			logger := runtime.NewLogger(service)

			url, err := config.RequiredString("DATABASE_URL")
			if err != nil {
				return err
			}
			pool, err := db.Open(ctx, url, db.Options{MaxConns: 1})
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer pool.Close()

			if err := storage.Migrate(ctx, pool); err != nil {
				return err
			}
			logger.Info("schema applied")
			return nil
		},
	}
	cmd.Flags().String("database-url", "", "Postgres URL (overrides DATABASE_URL)")
	return cmd
}
