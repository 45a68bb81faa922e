package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chadmayfield/stationd/internal/collector"
	"github.com/chadmayfield/stationd/internal/metrics"
)

// Health values reported by GET /api/v1/health.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusStopped  = "stopped"
)

// StatusSource reports the collector's last cycle.
type StatusSource interface {
	Status() collector.Status
}

// RunState reports whether the collection loop is still running.
type RunState interface {
	Running() bool
}

// Connectivity probes the primary database.
type Connectivity interface {
	IsConnected(ctx context.Context) bool
}

// QueueDepth reports how many records wait in the local queue.
type QueueDepth interface {
	PendingCount(ctx context.Context) (int, error)
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Collector StatusSource
	Scheduler RunState
	Primary   Connectivity
	Queue     QueueDepth
	Logger    *slog.Logger
	StartTime time.Time
	Version   string
}

// apiError is a JSON error response.
type apiError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, apiError{Error: msg, Code: status})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

type collectorHealth struct {
	State        string `json:"state"`
	Cycles       int64  `json:"cycles"`
	LastCycle    string `json:"last_cycle,omitempty"`
	LastResult   string `json:"last_result,omitempty"`
	LastError    string `json:"last_error,omitempty"`
	LastSync     string `json:"last_sync,omitempty"`
	LastSynced   int    `json:"last_synced"`
	MissingTotal int64  `json:"missing_sources_total"`
}

type databaseHealth struct {
	Connected bool `json:"connected"`
}

type queueHealth struct {
	Pending int    `json:"pending"`
	Error   string `json:"error,omitempty"`
}

type healthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Uptime    string          `json:"uptime"`
	Running   bool            `json:"running"`
	Collector collectorHealth `json:"collector"`
	Database  databaseHealth  `json:"database"`
	Queue     queueHealth     `json:"queue"`
}

// Health handles GET /api/v1/health.
//
// The endpoint answers 200 while the loop runs, reporting "degraded" when
// records are being queued locally, and 503 once the loop has stopped.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  StatusHealthy,
		Version: h.Version,
		Uptime:  formatUptime(time.Since(h.StartTime)),
		Running: true,
	}

	if h.Scheduler != nil {
		resp.Running = h.Scheduler.Running()
	}

	if h.Collector != nil {
		st := h.Collector.Status()
		resp.Collector = collectorHealth{
			State:        st.State,
			Cycles:       st.Cycles,
			LastResult:   st.LastResult,
			LastError:    st.LastError,
			LastSynced:   st.LastSynced,
			MissingTotal: st.MissingTotal,
		}
		if !st.LastCycleAt.IsZero() {
			resp.Collector.LastCycle = st.LastCycleAt.Format(time.RFC3339)
		}
		if !st.LastSyncAt.IsZero() {
			resp.Collector.LastSync = st.LastSyncAt.Format(time.RFC3339)
		}
		switch st.LastResult {
		case metrics.ResultQueued, metrics.ResultAborted, metrics.ResultFailed, metrics.ResultPanicked:
			resp.Status = StatusDegraded
		}
	}

	if h.Primary != nil {
		resp.Database.Connected = h.Primary.IsConnected(r.Context())
		if !resp.Database.Connected {
			resp.Status = StatusDegraded
		}
	}

	if h.Queue != nil {
		n, err := h.Queue.PendingCount(r.Context())
		if err != nil {
			h.Logger.Warn("failed to count pending records", "error", err)
			resp.Queue.Error = "unavailable"
			resp.Status = StatusDegraded
		}
		resp.Queue.Pending = n
	}

	code := http.StatusOK
	if !resp.Running {
		resp.Status = StatusStopped
		code = http.StatusServiceUnavailable
	}

	h.writeJSON(w, code, resp)
}

// NotFound handles unknown API paths.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusNotFound, "not found")
}
