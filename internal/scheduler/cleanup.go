package scheduler

import (
	"os"
	"runtime"
	"runtime/debug"

	"github.com/shirou/gopsutil/v4/process"
)

// cleanupDue reports whether the periodic interval has elapsed or the
// process has grown past the memory limit. Memory is sampled at most once
// per memoryCheckInterval.
func (s *Scheduler) cleanupDue(state *loopState) bool {
	now := s.now()
	if now.Sub(state.lastCleanup) >= s.opts.CleanupInterval {
		return true
	}
	if now.Sub(state.lastMemory) < memoryCheckInterval {
		return false
	}
	state.lastMemory = now

	rss, err := s.memProbe()
	if err != nil {
		s.logger.Debug("could not read process memory", "error", err)
		return false
	}
	rssMB := rss / (1024 * 1024)
	if rssMB > s.opts.MemoryLimitMB {
		s.logger.Warn("memory usage above threshold, running cleanup",
			"rss_mb", rssMB,
			"threshold_mb", s.opts.MemoryLimitMB,
		)
		return true
	}
	return false
}

func (s *Scheduler) releaseResources() {
	s.logger.Debug("performing resource cleanup")
	s.job.ReleaseIdle()
	reclaimMemory()
}

func reclaimMemory() {
	runtime.GC()
	debug.FreeOSMemory()
}

func processRSS() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return mem.RSS, nil
}
