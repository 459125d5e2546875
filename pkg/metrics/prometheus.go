// Package metrics provides Prometheus metrics for the textguard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the textguard service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	scoreBuckets     []float64
	enabled          bool
	registry         prometheus.Registerer

	// Detection metrics
	detections       *prometheus.CounterVec
	detectionLatency prometheus.Histogram
	inferenceLatency prometheus.Histogram
	inferenceErrors  prometheus.Counter
	inferenceTokens  prometheus.Histogram
	modelInfo        *prometheus.GaugeVec

	// Similarity metrics
	comparisons     *prometheus.CounterVec
	similarityScore prometheus.Histogram

	// Memo metrics
	memoHits   prometheus.Counter
	memoMisses prometheus.Counter
	memoSize   prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByType     *prometheus.CounterVec
	errorRateByEndpoint *prometheus.CounterVec
	errorLatency        *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "textguard",
		subsystem:        "api",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		scoreBuckets:     prometheus.LinearBuckets(0.1, 0.1, 10),
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.detections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "detections_total",
		Help:      "Total number of AI-text detections by label",
	}, []string{"label"})

	m.detectionLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "detection_latency_milliseconds",
		Help:      "End-to-end detection latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.inferenceLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "inference_latency_milliseconds",
		Help:      "Language model scoring call latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.inferenceErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "inference_errors_total",
		Help:      "Total number of failed language model scoring calls",
	})

	m.inferenceTokens = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "inference_tokens",
		Help:      "Number of tokens per scored text",
		Buckets:   prometheus.ExponentialBuckets(8, 2, 10),
	})

	m.modelInfo = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_info",
		Help:      "Loaded model snapshot; value is always 1",
	}, []string{"model", "encoding"})

	m.comparisons = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "comparisons_total",
		Help:      "Total number of similarity comparisons by label and input source",
	}, []string{"label", "source"})

	m.similarityScore = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "similarity_score",
		Help:      "Distribution of cosine similarity scores",
		Buckets:   m.scoreBuckets,
	})

	m.memoHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "memo_hits_total",
		Help:      "Detections answered from the result memo",
	})

	m.memoMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "memo_misses_total",
		Help:      "Detections that had to be computed",
	})

	m.memoSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "memo_entries",
		Help:      "Current number of memoized detection results",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_type_total",
			Help:      "Total number of errors by type and severity",
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_endpoint_total",
			Help:      "Total number of errors by HTTP endpoint",
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "error_latency_milliseconds",
			Help:      "Latency of operations that resulted in errors",
			Buckets:   m.histogramBuckets,
		},
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// RecordDetection counts a detection outcome and its latency.
func (m *Manager) RecordDetection(label string, latencyMs float64) {
	if !m.enabled {
		return
	}
	m.detections.WithLabelValues(label).Inc()
	m.detectionLatency.Observe(latencyMs)
}

// RecordInference records a language model call. A non-nil err counts as a failure.
func (m *Manager) RecordInference(tokens int, latencyMs float64, err error) {
	if !m.enabled {
		return
	}
	m.inferenceLatency.Observe(latencyMs)
	if err != nil {
		m.inferenceErrors.Inc()
		return
	}
	m.inferenceTokens.Observe(float64(tokens))
}

// SetModelInfo publishes the loaded model snapshot identity.
func (m *Manager) SetModelInfo(model, encoding string) {
	if !m.enabled {
		return
	}
	m.modelInfo.Reset()
	m.modelInfo.WithLabelValues(model, encoding).Set(1)
}

// RecordComparison counts a similarity comparison and observes its score.
func (m *Manager) RecordComparison(label, source string, score float64) {
	if !m.enabled {
		return
	}
	m.comparisons.WithLabelValues(label, source).Inc()
	m.similarityScore.Observe(score)
}

// RecordMemoLookup counts a memo hit or miss.
func (m *Manager) RecordMemoLookup(hit bool) {
	if !m.enabled {
		return
	}
	if hit {
		m.memoHits.Inc()
		return
	}
	m.memoMisses.Inc()
}

// UpdateMemoSize sets the number of memoized entries.
func (m *Manager) UpdateMemoSize(n int) {
	if !m.enabled {
		return
	}
	m.memoSize.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request and its duration.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordHTTPError records an error response on endpoint.
func (m *Manager) RecordHTTPError(endpoint, method, errorType, severity string, latencyMs float64) {
	if !m.enabled {
		return
	}
	m.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	m.errorRateByType.WithLabelValues(errorType, severity).Inc()
	m.errorLatency.WithLabelValues("http", errorType).Observe(latencyMs)
}

// UpdateSystem sets the runtime gauges.
func (m *Manager) UpdateSystem(memoryBytes uint64, goroutines int, gcPauseMs float64) {
	if !m.enabled {
		return
	}
	m.systemMemoryUsage.Set(float64(memoryBytes))
	m.systemGoroutineCount.Set(float64(goroutines))
	if gcPauseMs > 0 {
		m.systemGCPauseTime.Observe(gcPauseMs)
	}
}

// Package-level helpers operate on the global manager.

// Default returns the global manager backing the package-level helpers.
func Default() *Manager { return globalManager }

// RecordDetection counts a detection outcome and its latency.
func RecordDetection(label string, latencyMs float64) {
	globalManager.RecordDetection(label, latencyMs)
}

// RecordInference records a language model call.
func RecordInference(tokens int, latencyMs float64, err error) {
	globalManager.RecordInference(tokens, latencyMs, err)
}

// SetModelInfo publishes the loaded model snapshot identity.
func SetModelInfo(model, encoding string) { globalManager.SetModelInfo(model, encoding) }

// RecordComparison counts a similarity comparison.
func RecordComparison(label, source string, score float64) {
	globalManager.RecordComparison(label, source, score)
}

// RecordMemoLookup counts a memo hit or miss.
func RecordMemoLookup(hit bool) { globalManager.RecordMemoLookup(hit) }

// UpdateMemoSize sets the number of memoized entries.
func UpdateMemoSize(n int) { globalManager.UpdateMemoSize(n) }

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, durationMs)
}

// RecordHTTPError records an error response on endpoint.
func RecordHTTPError(endpoint, method, errorType, severity string, latencyMs float64) {
	globalManager.RecordHTTPError(endpoint, method, errorType, severity, latencyMs)
}

// UpdateSystem sets the runtime gauges.
func UpdateSystem(memoryBytes uint64, goroutines int, gcPauseMs float64) {
	globalManager.UpdateSystem(memoryBytes, goroutines, gcPauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
