package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chadmayfield/stationd/internal/metrics"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a single collection cycle and exit",
	Long: `collect fetches one reading from the station, stores it in the database or the
local queue, syncs pending records, and then runs the normal shutdown cleanup.`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	a.collector.Collect(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := a.collector.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("error during shutdown cleanup", "error", err)
	}

	st := a.collector.Status()
	a.logger.Info("collection finished", "result", st.LastResult, "pending", st.LastPending)
	switch st.LastResult {
	case metrics.ResultAborted, metrics.ResultFailed, metrics.ResultPanicked:
		return fmt.Errorf("collection %s: %s", st.LastResult, st.LastError)
	}
	return nil
}
