// Package collector runs one fetch, map, persist and sync cycle against the
// station and the two stores.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chadmayfield/stationd/internal/metrics"
	"github.com/chadmayfield/stationd/internal/station"
	"github.com/chadmayfield/stationd/internal/store"
	"github.com/chadmayfield/stationd/internal/weather"
)

// Cycle states.
const (
	StateIdle            = "idle"
	StateFetchingWind    = "fetching_wind"
	StateFetchingSensors = "fetching_sensors"
	StateMapping         = "mapping"
	StatePersisting      = "persisting"
	StateSyncing         = "syncing"
)

// Fetcher retrieves one JSON document from the station.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (weather.Payload, error)
	CloseIdleConnections()
	Close()
}

// Options tunes a Collector. Zero values use the package defaults.
type Options struct {
	StationIP     string
	SyncBatchSize int
	RetentionDays int
}

// Status is a snapshot of the collector for the health endpoint.
type Status struct {
	State        string    `json:"state"`
	Cycles       int64     `json:"cycles"`
	LastCycleAt  time.Time `json:"last_cycle_at,omitempty"`
	LastResult   string    `json:"last_result,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	LastSyncAt   time.Time `json:"last_sync_at,omitempty"`
	LastSynced   int       `json:"last_synced"`
	LastPending  int       `json:"last_pending"`
	MissingTotal int64     `json:"missing_sources_total"`
}

// Collector coordinates the station client and the stores.
type Collector struct {
	fetcher Fetcher
	primary store.Primary
	queue   store.Queue
	metrics *metrics.Metrics
	logger  *slog.Logger
	opts    Options
	now     func() time.Time

	mu     sync.RWMutex
	status Status

	shutdownOnce sync.Once
	shutdownErr  error
	closed       atomic.Bool
}

// NewCollector creates a collector. m may be nil.
func NewCollector(f Fetcher, p store.Primary, q store.Queue, m *metrics.Metrics, opts Options, logger *slog.Logger) *Collector {
	if opts.SyncBatchSize <= 0 {
		opts.SyncBatchSize = store.DefaultPendingLimit
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = store.DefaultRetentionDays
	}
	return &Collector{
		fetcher: f,
		primary: p,
		queue:   q,
		metrics: m,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
		status:  Status{State: StateIdle},
	}
}

// SetClock replaces the time source used to stamp records.
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// Status returns a snapshot of the collector state.
func (c *Collector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Collector) setState(state string) {
	c.mu.Lock()
	c.status.State = state
	c.mu.Unlock()
}

func (c *Collector) finish(at time.Time, result string, cycleErr error) {
	c.mu.Lock()
	c.status.State = StateIdle
	c.status.Cycles++
	c.status.LastCycleAt = at
	c.status.LastResult = result
	c.status.LastError = ""
	if cycleErr != nil {
		c.status.LastError = cycleErr.Error()
	}
	c.mu.Unlock()
	c.metrics.CycleCompleted(result)
}

// Collect runs one cycle. Failures are logged and never returned; a panic
// anywhere in the cycle is recovered.
func (c *Collector) Collect(ctx context.Context) {
	start := c.now()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("error in data collection",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			c.finish(start, metrics.ResultPanicked, fmt.Errorf("panic: %v", r))
		}
	}()

	c.logger.Debug("starting data collection", "station_ip", c.opts.StationIP)

	missing := 0

	c.setState(StateFetchingWind)
	wind, err := c.fetcher.Fetch(ctx, station.WindURL(c.opts.StationIP))
	if err != nil {
		c.logger.Error("Failed to retrieve wind data", "error", err)
		c.metrics.FetchFailed("wind")
		wind = weather.Payload{}
		missing++
	}

	c.setState(StateFetchingSensors)
	sensors, err := c.fetcher.Fetch(ctx, station.SensorsURL(c.opts.StationIP))
	if err != nil {
		c.logger.Error("Failed to retrieve sensor data", "error", err)
		c.metrics.FetchFailed("sensors")
		sensors = weather.Payload{}
		missing++
	}

	if missing > 0 {
		c.mu.Lock()
		c.status.MissingTotal += int64(missing)
		c.mu.Unlock()
	}
	if missing == 2 {
		c.logger.Error("Failed to retrieve any data from weather station, skipping cycle")
		c.finish(start, metrics.ResultAborted, station.ErrUnavailable)
		return
	}

	c.setState(StateMapping)
	rec := weather.MapPayloads(wind, sensors, start)
	c.logger.Debug("collected data", "date", rec.Date, "time", rec.Time, "missing_sources", missing)

	c.setState(StatePersisting)
	result, persistErr := c.persist(ctx, &rec)

	c.setState(StateSyncing)
	c.SyncPending(ctx)

	c.finish(start, result, persistErr)
}

// persist writes rec to the primary, falling back to the local queue.
func (c *Collector) persist(ctx context.Context, rec *weather.Record) (string, error) {
	if c.primary.IsConnected(ctx) {
		c.logger.Debug("database connected, attempting to save data")
		err := c.primary.SaveData(ctx, rec)
		if err == nil {
			c.logger.Info("Data saved to database successfully")
			return metrics.ResultPrimary, nil
		}
		c.logger.Warn("Failed to save to database, falling back to local storage", "error", err)
	} else {
		c.logger.Warn("Database not connected, saving to local storage")
	}

	if _, err := c.queue.SaveData(ctx, rec); err != nil {
		c.logger.Error("failed to save to local storage, record lost", "error", err)
		return metrics.ResultFailed, err
	}
	return metrics.ResultQueued, nil
}

// ReleaseIdle drops idle upstream connections between cycles.
func (c *Collector) ReleaseIdle() {
	c.fetcher.CloseIdleConnections()
}

// Shutdown releases every resource the collector holds: the upstream
// session, expired queue entries, the primary pool and the queue handle.
// It is meant to be called once.
func (c *Collector) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.shutdownErr = c.shutdown(ctx)
		c.closed.Store(true)
	})
	return c.shutdownErr
}

// Closed reports whether Shutdown has released the fetcher and both stores.
func (c *Collector) Closed() bool { return c.closed.Load() }

func (c *Collector) shutdown(ctx context.Context) error {
	c.logger.Info("shutting down collector")
	c.fetcher.Close()

	var errs []error
	if n, err := c.queue.CleanupOldRecords(ctx, c.opts.RetentionDays); err != nil {
		c.logger.Error("failed to clean up local storage", "error", err)
		errs = append(errs, err)
	} else {
		c.metrics.RecordCleaned(n)
	}

	c.primary.Close()
	if err := c.queue.Close(); err != nil {
		c.logger.Error("failed to close local storage", "error", err)
		errs = append(errs, fmt.Errorf("closing local queue: %w", err))
	}
	return errors.Join(errs...)
}

// Cleanup purges synced queue entries older than the retention window.
func (c *Collector) Cleanup(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = c.opts.RetentionDays
	}
	n, err := c.queue.CleanupOldRecords(ctx, days)
	if err != nil {
		return 0, err
	}
	c.metrics.RecordCleaned(n)
	return n, nil
}
