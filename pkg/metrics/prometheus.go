// Package metrics provides Prometheus metrics for the ConsumerLens
// query engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the query engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Query execution
	queriesExecuted *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	rowsReturned    prometheus.Histogram

	// Validation and rewriting
	validationRejections prometheus.Counter
	rewriteWarnings      prometheus.Counter

	// Pool health
	poolAcquireLatency prometheus.Histogram
	poolExhausted      prometheus.Counter
	queryTimeouts      prometheus.Counter

	// Insights
	insightsGenerated *prometheus.CounterVec
	emptyResults      prometheus.Counter

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors by component
	errorRateByComponent *prometheus.CounterVec

	// Process health
	systemMemoryBytes prometheus.Gauge
	systemGoroutines  prometheus.Gauge
	gcPauseTime       prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// defaultLatencyBuckets covers millisecond latencies from a pool
// acquire on a warm pool up to the 60s statement timeout.
var defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 15000, 60000} //nolint:gochecknoglobals

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "consumerlens",
		subsystem:        "engine",
		histogramBuckets: defaultLatencyBuckets,
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.queriesExecuted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queries_executed_total",
		Help:        "Queries executed, by kind (raw, rank, profile, schema, sample).",
		ConstLabels: m.customLabels,
	}, []string{"kind"})

	m.queryDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "query_duration_ms",
		Help:        "Statement execution latency in milliseconds, by kind.",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"kind"})

	m.rowsReturned = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rows_returned",
		Help:        "Rows returned per executed query.",
		Buckets:     []float64{1, 5, 10, 50, 100, 500, 1000},
		ConstLabels: m.customLabels,
	})

	m.validationRejections = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "validation_rejections_total",
		Help:        "Statements rejected before any connection was acquired.",
		ConstLabels: m.customLabels,
	})

	m.rewriteWarnings = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rewrite_warnings_total",
		Help:        "Business-rule rewrites applied to caller SQL.",
		ConstLabels: m.customLabels,
	})

	m.poolAcquireLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "pool_acquire_latency_ms",
		Help:        "Connection acquisition latency in milliseconds.",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})

	m.poolExhausted = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "pool_exhausted_total",
		Help:        "Acquisitions that failed after the bounded wait.",
		ConstLabels: m.customLabels,
	})

	m.queryTimeouts = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "query_timeouts_total",
		Help:        "Statements cancelled by the statement timeout.",
		ConstLabels: m.customLabels,
	})

	m.insightsGenerated = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "insights_generated_total",
		Help:        "Insights produced, by kind (concentration, skew, opportunity).",
		ConstLabels: m.customLabels,
	}, []string{"kind"})

	m.emptyResults = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "empty_results_total",
		Help:        "Queries that matched no rows (a valid outcome).",
		ConstLabels: m.customLabels,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "HTTP requests by endpoint, method, and status code.",
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_ms",
		Help:        "HTTP request latency in milliseconds.",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "errors_by_component_total",
		Help:        "Errors by component and error type.",
		ConstLabels: m.customLabels,
	}, []string{"component", "error_type"})

	m.systemMemoryBytes = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_memory_bytes",
		Help:        "Current heap allocation in bytes.",
		ConstLabels: m.customLabels,
	})

	m.systemGoroutines = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_goroutines",
		Help:        "Current number of goroutines.",
		ConstLabels: m.customLabels,
	})

	m.gcPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "gc_pause_time_ms",
		Help:        "Average GC pause time in milliseconds.",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})
}

// RecordQueryExecuted increments the executed-query counter for kind.
func RecordQueryExecuted(kind string) {
	if globalManager.enabled {
		globalManager.queriesExecuted.WithLabelValues(kind).Inc()
	}
}

// RecordQueryDuration observes statement latency for kind.
func RecordQueryDuration(kind string, latencyMs float64) {
	if globalManager.enabled {
		globalManager.queryDuration.WithLabelValues(kind).Observe(latencyMs)
	}
}

// RecordRowsReturned observes the size of a result set.
func RecordRowsReturned(n int) {
	if globalManager.enabled {
		globalManager.rowsReturned.Observe(float64(n))
	}
}

// RecordValidationRejection increments the rejection counter.
func RecordValidationRejection() {
	if globalManager.enabled {
		globalManager.validationRejections.Inc()
	}
}

// RecordRewriteWarning increments the rewrite counter.
func RecordRewriteWarning() {
	if globalManager.enabled {
		globalManager.rewriteWarnings.Inc()
	}
}

// RecordPoolAcquireLatency observes connection acquisition latency.
func RecordPoolAcquireLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.poolAcquireLatency.Observe(latencyMs)
	}
}

// RecordPoolExhausted increments the pool saturation counter.
func RecordPoolExhausted() {
	if globalManager.enabled {
		globalManager.poolExhausted.Inc()
	}
}

// RecordQueryTimeout increments the statement-timeout counter.
func RecordQueryTimeout() {
	if globalManager.enabled {
		globalManager.queryTimeouts.Inc()
	}
}

// RecordInsight increments the insight counter for kind.
func RecordInsight(kind string) {
	if globalManager.enabled {
		globalManager.insightsGenerated.WithLabelValues(kind).Inc()
	}
}

// RecordEmptyResult increments the empty-result counter.
func RecordEmptyResult() {
	if globalManager.enabled {
		globalManager.emptyResults.Inc()
	}
}

// RecordHTTPRequest increments HTTP request counters.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration observes HTTP request latency.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByComponent increments error counters by component.
func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// UpdateSystemMemoryUsage sets the current heap allocation gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.enabled {
		globalManager.systemMemoryBytes.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine count gauge.
func UpdateSystemGoroutineCount(count int) {
	if globalManager.enabled {
		globalManager.systemGoroutines.Set(float64(count))
	}
}

// RecordSystemGCPauseTime records an average GC pause observation.
func RecordSystemGCPauseTime(pauseMs float64) {
	if globalManager.enabled {
		globalManager.gcPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the custom registry used to serve metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
