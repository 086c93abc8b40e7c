package main

import (
	"fmt"

	"zentrust-donations/internal/client"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the donation tables and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := client.InitDBClient(cfg.DatabaseURL, log)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			if err := client.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			log.Info("database migrated")
			return nil
		},
	}
}
