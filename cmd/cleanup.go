package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete synced queue records older than the retention window",
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "retention in days (default retention_days)")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.collector.Cleanup(cmd.Context(), cleanupDays)
	if err != nil {
		return fmt.Errorf("cleaning up local queue: %w", err)
	}
	a.logger.Info("cleanup finished", "deleted", n)
	return nil
}
