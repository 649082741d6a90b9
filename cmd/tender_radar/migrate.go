package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/store"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|version]",
	Short: "Manage the Postgres schema",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().IntVar(&migrateSteps, "steps", 1, "Number of migrations to roll back with down")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	action := "up"
	if len(args) == 1 {
		action = args[0]
	}
	switch action {
	case "up":
		return store.Migrate(cfg.DatabaseURL, log)
	case "down":
		return store.MigrateDown(cfg.DatabaseURL, migrateSteps, log)
	case "version":
		version, dirty, err := store.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate action %q (want up, down or version)", action)
	}
}
