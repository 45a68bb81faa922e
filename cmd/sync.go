package cmd

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push queued records to the database once and exit",
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	a.collector.SyncPending(cmd.Context())

	st := a.collector.Status()
	a.logger.Info("sync finished", "synced", st.LastSynced, "pending", st.LastPending)
	return nil
}
