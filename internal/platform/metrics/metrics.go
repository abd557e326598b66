package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the segment exporter.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	exportsTotal        prometheus.Counter
	filesCreatedTotal   prometheus.Counter
	filesDeletedTotal   prometheus.Counter
	filesRenamedTotal   prometheus.Counter
	filesRecreatedTotal prometheus.Counter
	segmentsSkipped     prometheus.Counter
	indexTiesTotal      prometheus.Counter
	activeSessions      prometheus.Gauge
	errorsTotal         prometheus.Counter
}

// New creates and registers Prometheus metrics for the exporter.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slicer_requests_total",
		Help: "Total number of HTTP requests received",
	})
	exportsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slicer_exports_total",
		Help: "Total number of completed export cycles",
	})
	filesCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slicer_files_created_total",
		Help: "Total number of create actions planned",
	})
	filesDeletedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slicer_files_deleted_total",
		Help: "Total number of delete actions planned",
	})
	filesRenamedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slicer_files_renamed_total",
		Help: "Total number of rename actions planned",
	})
	filesRecreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slicer_files_recreated_total",
		Help: "Total number of recreate actions planned",
	})
	segmentsSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slicer_segments_skipped_total",
		Help: "Total number of unchanged segments skipped during export",
	})
	indexTiesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slicer_index_ties_total",
		Help: "Total number of segments whose ordinal index tied a neighbor (sub-index precision exhausted)",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "slicer_active_sessions",
		Help: "Number of editing sessions known to the repository",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slicer_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		requestsTotal,
		exportsTotal,
		filesCreatedTotal,
		filesDeletedTotal,
		filesRenamedTotal,
		filesRecreatedTotal,
		segmentsSkipped,
		indexTiesTotal,
		activeSessions,
		errorsTotal,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		exportsTotal:        exportsTotal,
		filesCreatedTotal:   filesCreatedTotal,
		filesDeletedTotal:   filesDeletedTotal,
		filesRenamedTotal:   filesRenamedTotal,
		filesRecreatedTotal: filesRecreatedTotal,
		segmentsSkipped:     segmentsSkipped,
		indexTiesTotal:      indexTiesTotal,
		activeSessions:      activeSessions,
		errorsTotal:         errorsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncExports increments the export cycle counter.
func (m *Metrics) IncExports() {
	m.exportsTotal.Inc()
}

// AddActions records the per-type action counts of one export plan.
func (m *Metrics) AddActions(created, deleted, renamed, recreated, skipped int) {
	m.filesCreatedTotal.Add(float64(created))
	m.filesDeletedTotal.Add(float64(deleted))
	m.filesRenamedTotal.Add(float64(renamed))
	m.filesRecreatedTotal.Add(float64(recreated))
	m.segmentsSkipped.Add(float64(skipped))
}

// AddIndexTies records segments that received a tied ordinal index.
func (m *Metrics) AddIndexTies(n int) {
	m.indexTiesTotal.Add(float64(n))
}

// SetActiveSessions sets the session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
