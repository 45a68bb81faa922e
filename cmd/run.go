package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chadmayfield/stationd/internal/api"
	"github.com/chadmayfield/stationd/internal/scheduler"
)

var (
	listenAddr string
	schedule   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the collection loop (default command)",
	RunE:  runDaemon,
}

func init() {
	runCmd.Flags().StringVar(&listenAddr, "listen", "", "status server listen address (overrides listen_addr)")
	runCmd.Flags().StringVar(&schedule, "schedule", "", "collection schedule (overrides collection_schedule)")
	rootCmd.AddCommand(runCmd)

	// Make run the default command.
	rootCmd.RunE = runDaemon
	rootCmd.Flags().AddFlagSet(runCmd.Flags())
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if listenAddr != "" {
		a.cfg.ListenAddr = listenAddr
	}
	if schedule != "" {
		a.cfg.CollectionSchedule = schedule
	}

	return a.run(cmd.Context(), true)
}

// run drives the scheduler and, when listen_addr is set, the status server
// until the scheduler stops. With handleSignals, SIGINT and SIGTERM stop the
// loop; a service supervisor cancels ctx instead.
func (a *app) run(ctx context.Context, handleSignals bool) error {
	sched, err := scheduler.New(a.collector, scheduler.Options{
		Schedule:        a.cfg.CollectionSchedule,
		CleanupInterval: a.cfg.CleanupInterval,
		MemoryLimitMB:   a.cfg.MemoryThresholdMB,
	}, a.logger)
	if err != nil {
		return err
	}

	if handleSignals {
		release := scheduler.HandleSignals(sched)
		defer release()
	}

	a.logger.Info("Weather collector started",
		"version", versionString(),
		"schedule", a.cfg.CollectionSchedule,
		"status_addr", a.cfg.ListenAddr,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var srv *api.Server
	if a.cfg.ListenAddr != "" {
		srv = api.NewServer(api.Deps{
			Collector: a.collector,
			Scheduler: sched,
			Primary:   a.primary,
			Queue:     a.queue,
			Gatherer:  a.registry,
		}, a.logger)
		srv.SetVersion(versionString())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The server stops with the loop.
		defer cancel()
		return sched.Run(gctx)
	})
	if srv != nil {
		g.Go(func() error { return srv.ListenAndServe(gctx, a.cfg.ListenAddr) })
	}

	waitErr := g.Wait()
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		a.logger.Error("stationd exited with error", "error", waitErr)
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}

	a.logger.Info("stationd shutdown complete")
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	return nil
}
