package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Install metrics
	InstallsTotal   *prometheus.CounterVec
	InstallDuration prometheus.Histogram

	// Resolve metrics
	ResolvesTotal   *prometheus.CounterVec
	ResolveDuration prometheus.Histogram

	// Mirror sync metrics
	SyncRuns          *prometheus.CounterVec
	SyncEntryFailures prometheus.Counter
	SyncDuration      prometheus.Histogram

	// Catalog metrics
	CatalogBuilds    prometheus.Counter
	CatalogCacheHits prometheus.Counter

	// Store metrics
	PackagesStored prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON API
type Snapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	TotalErrors    int64   `json:"total_errors"`
	TotalInstalls  int64   `json:"total_installs"`
	TotalResolves  int64   `json:"total_resolves"`
	SyncRuns       int64   `json:"sync_runs"`
	PackagesStored int64   `json:"packages_stored"`
	TotalDuration  float64 `json:"-"`
	RequestCount   int64   `json:"-"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	AvgDurationMS  float64 `json:"avg_request_duration_ms"`
}

// NewMetrics creates a new metrics collector with its own registry, so
// tests can construct as many as they like.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry:  registry,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "registry_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "registry_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "registry_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		InstallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_installs_total",
				Help: "Total number of package installs",
			},
			[]string{"provenance", "outcome"},
		),
		InstallDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "registry_install_duration_seconds",
				Help:    "Install duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),

		ResolvesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_resolves_total",
				Help: "Total number of dependency resolutions",
			},
			[]string{"outcome"},
		),
		ResolveDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "registry_resolve_duration_seconds",
				Help:    "Dependency resolution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),

		SyncRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_sync_runs_total",
				Help: "Total number of mirror sync runs",
			},
			[]string{"status"},
		),
		SyncEntryFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_sync_entry_failures_total",
				Help: "Total number of per-entry sync failures",
			},
		),
		SyncDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "registry_sync_duration_seconds",
				Help:    "Mirror sync run duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
			},
		),

		CatalogBuilds: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_catalog_builds_total",
				Help: "Total number of per-tenant catalog rebuilds",
			},
		),
		CatalogCacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_catalog_cache_hits_total",
				Help: "Total number of catalog cache hits",
			},
		),

		PackagesStored: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "registry_packages_stored",
				Help: "Number of package versions in the store",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "registry_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	return m
}

// Handler returns the Prometheus scrape handler for this collector.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordInstall records one install attempt.
func (m *Metrics) RecordInstall(provenance, outcome string, duration time.Duration) {
	m.InstallsTotal.WithLabelValues(provenance, outcome).Inc()
	m.InstallDuration.Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalInstalls++
	m.mu.Unlock()
}

// RecordResolve records one resolution attempt.
func (m *Metrics) RecordResolve(outcome string, duration time.Duration) {
	m.ResolvesTotal.WithLabelValues(outcome).Inc()
	m.ResolveDuration.Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalResolves++
	m.mu.Unlock()
}

// RecordSyncRun records a completed (or skipped) mirror sync run.
func (m *Metrics) RecordSyncRun(status string, duration time.Duration, entryFailures int) {
	m.SyncRuns.WithLabelValues(status).Inc()
	m.SyncDuration.Observe(duration.Seconds())
	if entryFailures > 0 {
		m.SyncEntryFailures.Add(float64(entryFailures))
	}

	m.mu.Lock()
	m.snapshot.SyncRuns++
	m.mu.Unlock()
}

// RecordCatalogBuild records a per-tenant snapshot rebuild.
func (m *Metrics) RecordCatalogBuild() {
	m.CatalogBuilds.Inc()
}

// RecordCatalogCacheHit records a catalog served from cache.
func (m *Metrics) RecordCatalogCacheHit() {
	m.CatalogCacheHits.Inc()
}

// SetPackagesStored sets the stored package version gauge.
func (m *Metrics) SetPackagesStored(count int) {
	m.PackagesStored.Set(float64(count))

	m.mu.Lock()
	m.snapshot.PackagesStored = int64(count)
	m.mu.Unlock()
}

// GetSnapshot returns current metric values for the JSON API.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	snap := m.snapshot
	m.mu.RUnlock()

	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	m.Uptime.Set(snap.UptimeSeconds)
	if snap.RequestCount > 0 {
		snap.AvgDurationMS = snap.TotalDuration / float64(snap.RequestCount) * 1000
	}
	return snap
}
