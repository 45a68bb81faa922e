package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chadmayfield/stationd/internal/store"
)

var dryRun bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the local queue and create the database table",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, logs, err := loadSettings()
	if err != nil {
		return err
	}
	defer logs.Close() //nolint:errcheck

	ctx := cmd.Context()

	if dryRun {
		logger.Info("dry run mode, showing pending migrations")
		states, err := store.QueueMigrations(ctx, cfg.LocalDBPath)
		if err != nil {
			return err
		}
		pending := 0
		for _, st := range states {
			if !st.Applied {
				pending++
			}
			logger.Info("queue migration", "version", st.Version, "name", st.Name, "applied", st.Applied)
		}
		logger.Info("migration status", "path", cfg.LocalDBPath, "pending", pending, "table", cfg.DatabaseTable)
		return nil
	}

	// Opening the queue runs its migrations.
	q, err := store.NewSQLiteQueue(cfg.LocalDBPath, logger)
	if err != nil {
		return err
	}
	if err := q.Close(); err != nil {
		return fmt.Errorf("closing local queue: %w", err)
	}
	logger.Info("local queue migrated", "path", cfg.LocalDBPath)

	pg, err := store.NewPostgresStore(postgresConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.EnsureTable(ctx); err != nil {
		return err
	}
	logger.Info("migrations complete", "table", pg.Table())
	return nil
}
