package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the application metrics
type Metrics struct {
	// HTTP request metrics
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Session lifecycle metrics
	SessionTransitionTotal *prometheus.CounterVec
	ProgressEventTotal     *prometheus.CounterVec
	GenerationDuration     *prometheus.HistogramVec

	// Catalog metrics
	CatalogRefreshTotal    *prometheus.CounterVec
	CatalogRefreshDuration *prometheus.HistogramVec

	// Event publishing metrics
	EventPublishTotal *prometheus.CounterVec

	// Schema validation metrics
	SchemaValidationTotal *prometheus.CounterVec
}

// Global metrics instance with mutex for thread safety
var (
	globalMetrics *Metrics
	metricsMutex  sync.Mutex
)

// NewMetrics creates a new Metrics instance with all required metrics
func NewMetrics() *Metrics {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	// Return existing instance if already created
	if globalMetrics != nil {
		return globalMetrics
	}

	m := &Metrics{
		// HTTP request metrics
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		// Session lifecycle metrics
		SessionTransitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_transitions_total",
			Help: "Total number of session state transitions",
		}, []string{"from", "to"}),

		ProgressEventTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_events_total",
			Help: "Total number of progress events emitted",
		}, []string{"status"}),

		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "generation_duration_seconds",
			Help:    "Generation job duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),

		// Catalog metrics
		CatalogRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_refresh_total",
			Help: "Total number of catalog refresh attempts",
		}, []string{"status"}),

		CatalogRefreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_refresh_duration_seconds",
			Help:    "Catalog refresh duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),

		// Event publishing metrics
		EventPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_publish_total",
			Help: "Total number of event publish operations",
		}, []string{"event_type", "status"}),

		// Schema validation metrics
		SchemaValidationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schema_validation_total",
			Help: "Total number of schema validation operations",
		}, []string{"doc_type", "status"}),
	}

	// Register metrics with the default registry
	registerMetrics(m)

	// Store as global instance
	globalMetrics = m

	return m
}

// registerMetrics registers all metrics with the default registry
func registerMetrics(m *Metrics) {
	// Try to register each metric, ignore if already registered
	registerOrGet(m.HTTPRequestTotal)
	registerOrGet(m.HTTPRequestDuration)
	registerOrGet(m.SessionTransitionTotal)
	registerOrGet(m.ProgressEventTotal)
	registerOrGet(m.GenerationDuration)
	registerOrGet(m.CatalogRefreshTotal)
	registerOrGet(m.CatalogRefreshDuration)
	registerOrGet(m.EventPublishTotal)
	registerOrGet(m.SchemaValidationTotal)
}

// registerOrGet tries to register a metric, returns the existing one if already registered
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		// If already registered, return the existing collector
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}
