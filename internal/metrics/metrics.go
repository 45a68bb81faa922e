// Package metrics exposes Prometheus instruments for collection cycles and
// queue reconciliation. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stationd"

// Cycle outcomes.
const (
	ResultPrimary  = "primary"
	ResultQueued   = "queued"
	ResultAborted  = "aborted"
	ResultFailed   = "failed"
	ResultPanicked = "panicked"
)

// Metrics holds the collector instruments.
type Metrics struct {
	cycles        *prometheus.CounterVec
	fetchFailures *prometheus.CounterVec
	synced        prometheus.Counter
	syncFailures  prometheus.Counter
	pending       prometheus.Gauge
	cleaned       prometheus.Counter
}

// New creates the instruments and registers them with reg. If reg is nil,
// it returns nil (no-op metrics).
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_cycles_total",
			Help:      "Collection cycles by outcome.",
		}, []string{"result"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Station endpoint fetches that failed after retries.",
		}, []string{"source"}),
		synced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synced_records_total",
			Help:      "Queued records delivered to the primary database.",
		}),
		syncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_failures_total",
			Help:      "Queued records the primary database rejected during sync.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending_records",
			Help:      "Records waiting in the local queue.",
		}),
		cleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_cleaned_records_total",
			Help:      "Synced records purged from the local queue.",
		}),
	}

	for _, c := range []prometheus.Collector{m.cycles, m.fetchFailures, m.synced, m.syncFailures, m.pending, m.cleaned} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// CycleCompleted counts a finished collection cycle.
func (m *Metrics) CycleCompleted(result string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
}

// FetchFailed counts a source that could not be retrieved.
func (m *Metrics) FetchFailed(source string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordSynced(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.synced.Add(float64(n))
}

func (m *Metrics) RecordSyncFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.syncFailures.Add(float64(n))
}

// SetPending records the current queue depth.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) RecordCleaned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.cleaned.Add(float64(n))
}
