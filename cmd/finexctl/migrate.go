package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"finex/internal/storage"
)

func migrateCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQLite schema migrations",
		Long:  `Bring the SQLite database up to the latest schema version. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				dbPath = cfg.SQLiteDBPath
			}

			if err := storage.RunMigrations(dbPath); err != nil {
				return fmt.Errorf("failed to migrate %s: %w", dbPath, err)
			}

			version, dirty, err := storage.MigrationVersion(dbPath)
			if err != nil {
				return fmt.Errorf("failed to read schema version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is at schema version %d", dbPath, version)
			if dirty {
				fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default: SQLITE_DB_PATH)")
	return cmd
}
