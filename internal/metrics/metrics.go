// Package metrics holds the Prometheus collectors exported by an evstore
// instance on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "evstore"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal        *prometheus.CounterVec
	migratedTotal      prometheus.Counter
	removedTotal       prometheus.Counter
	latestIndex        prometheus.Gauge
	internEntries      prometheus.Gauge
	dedupEntries       prometheus.Gauge
	hourlyBuckets      prometheus.Gauge
	deferredPending    prometheus.Gauge
	storageReadBytes   prometheus.Counter
	storageWriteBytes  prometheus.Counter
	batchCommitSeconds prometheus.Histogram
	requestsTotal      *prometheus.CounterVec
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "events_total",
			Help: "Pushed events by outcome (accepted, duplicate, deferred, failed).",
		}, []string{"outcome"}),
		migratedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "migration", Name: "events_total",
			Help: "Events copied from the legacy log.",
		}),
		removedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "log", Name: "removed_events_total",
		}),
		latestIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "log", Name: "latest_index",
		}),
		internEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "interner", Name: "entries",
		}),
		dedupEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "dedup", Name: "entries",
		}),
		hourlyBuckets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "aggregation", Name: "hourly_buckets",
		}),
		deferredPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "deferred_pending",
			Help: "Events waiting for the anonymization salt.",
		}),
		storageReadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "read_bytes_total",
		}),
		storageWriteBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "write_bytes_total",
		}),
		batchCommitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "storage", Name: "batch_commit_seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "api", Name: "requests_total",
		}, []string{"method", "code"}),
	}
	reg.MustRegister(
		m.eventsTotal, m.migratedTotal, m.removedTotal, m.latestIndex,
		m.internEntries, m.dedupEntries, m.hourlyBuckets, m.deferredPending,
		m.storageReadBytes, m.storageWriteBytes, m.batchCommitSeconds, m.requestsTotal,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Event outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeDeferred  = "deferred"
	OutcomeFailed    = "failed"
)

func (m *Metrics) IncEvents(outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddMigrated(n int) {
	if m == nil {
		return
	}
	m.migratedTotal.Add(float64(n))
}

func (m *Metrics) AddRemoved(n int) {
	if m == nil {
		return
	}
	m.removedTotal.Add(float64(n))
}

// EmitTrimRange counts each committed head-removal batch of a log.
func (m *Metrics) EmitTrimRange(_ string, minIndex, maxIndex uint64) {
	m.AddRemoved(int(maxIndex - minIndex + 1))
}

func (m *Metrics) SetLatestIndex(i uint64) {
	if m == nil {
		return
	}
	m.latestIndex.Set(float64(i))
}

func (m *Metrics) SetInternEntries(n int) {
	if m == nil {
		return
	}
	m.internEntries.Set(float64(n))
}

func (m *Metrics) SetDedupEntries(n int) {
	if m == nil {
		return
	}
	m.dedupEntries.Set(float64(n))
}

func (m *Metrics) SetHourlyBuckets(n int) {
	if m == nil {
		return
	}
	m.hourlyBuckets.Set(float64(n))
}

func (m *Metrics) SetDeferredPending(n uint64) {
	if m == nil {
		return
	}
	m.deferredPending.Set(float64(n))
}

func (m *Metrics) IncRequest(method, code string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, code).Inc()
}

// StorageHook adapts the collectors to pebblestore.MetricsHook.
func (m *Metrics) StorageHook() StorageHook { return StorageHook{m: m} }

// StorageHook implements pebblestore.MetricsHook.
type StorageHook struct{ m *Metrics }

func (h StorageHook) ObserveWrite(_ time.Duration, bytes int) {
	if h.m == nil {
		return
	}
	h.m.storageWriteBytes.Add(float64(bytes))
}

func (h StorageHook) ObserveRead(_ time.Duration, bytes int) {
	if h.m == nil {
		return
	}
	h.m.storageReadBytes.Add(float64(bytes))
}

func (h StorageHook) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	if h.m == nil {
		return
	}
	h.m.batchCommitSeconds.Observe(elapsed.Seconds())
	h.m.storageWriteBytes.Add(float64(bytes))
}
