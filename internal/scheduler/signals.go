package scheduler

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// HandleSignals stops s on SIGINT or SIGTERM. The returned function
// unregisters the handler.
func HandleSignals(s *Scheduler) (release func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	quit := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			s.logger.Info("received signal, shutting down gracefully", "signal", sig.String())
			s.Stop("signal " + sig.String())
		case <-quit:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(quit)
		})
	}
}
