package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trustnet/trustnet-cache/internal/cache"
)

// PrometheusMetrics contains all Prometheus metrics for the cache service
type PrometheusMetrics struct {
	// Cache metrics
	CacheOperations        *prometheus.CounterVec
	CacheOperationDuration *prometheus.HistogramVec
	CacheHits              prometheus.Counter
	CacheMisses            prometheus.Counter
	CacheErrors            *prometheus.CounterVec
	CacheKeys              prometheus.Gauge
	CacheMemoryBytes       prometheus.Gauge

	// Query metrics
	QueryDuration *prometheus.HistogramVec
	SlowQueries   *prometheus.CounterVec

	// Admin API metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance on a private
// registry
func NewPrometheusMetrics(namespace, subsystem string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	metrics := &PrometheusMetrics{
		CacheOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operations_total",
				Help:      "Total number of cache operations by outcome",
			},
			[]string{"operation", "result"},
		),

		CacheOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operation_duration_seconds",
				Help:      "Cache operation duration in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"operation"},
		),

		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
		),

		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			},
		),

		CacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "errors_total",
				Help:      "Total number of swallowed store errors",
			},
			[]string{"operation"},
		),

		CacheKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "keys",
				Help:      "Number of keys in the store",
			},
		),

		CacheMemoryBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "memory_bytes",
				Help:      "Memory reported by the store in bytes",
			},
		),

		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "query_duration_seconds",
				Help:      "Tracked query duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"query"},
		),

		SlowQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "slow_queries_total",
				Help:      "Total number of queries slower than the threshold",
			},
			[]string{"query"},
		),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "admin_requests_total",
				Help:      "Total number of admin API requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "admin_request_duration_seconds",
				Help:      "Admin API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "admin_requests_in_flight",
				Help:      "Number of admin API requests currently being processed",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		metrics.CacheOperations,
		metrics.CacheOperationDuration,
		metrics.CacheHits,
		metrics.CacheMisses,
		metrics.CacheErrors,
		metrics.CacheKeys,
		metrics.CacheMemoryBytes,
		metrics.QueryDuration,
		metrics.SlowQueries,
		metrics.RequestsTotal,
		metrics.RequestDuration,
		metrics.RequestsInFlight,
	)

	return metrics
}

// GetRegistry returns the Prometheus registry
func (m *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCacheOperation records one cache service call
func (m *PrometheusMetrics) ObserveCacheOperation(operation, result string, duration time.Duration) {
	m.CacheOperations.WithLabelValues(operation, result).Inc()
	m.CacheOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())

	switch result {
	case cache.ResultHit:
		m.CacheHits.Inc()
	case cache.ResultMiss:
		m.CacheMisses.Inc()
	case cache.ResultError:
		m.CacheErrors.WithLabelValues(operation).Inc()
	}
}

// ObserveQuery records one tracked query
func (m *PrometheusMetrics) ObserveQuery(query string, duration time.Duration, slow bool) {
	m.QueryDuration.WithLabelValues(query).Observe(duration.Seconds())
	if slow {
		m.SlowQueries.WithLabelValues(query).Inc()
	}
}

// UpdateStoreGauges sets the store size gauges
func (m *PrometheusMetrics) UpdateStoreGauges(keys, memoryBytes float64) {
	m.CacheKeys.Set(keys)
	m.CacheMemoryBytes.Set(memoryBytes)
}

// RecordRequest records admin API request metrics
func (m *PrometheusMetrics) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.RequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// PrometheusMiddleware creates a Gin middleware for Prometheus metrics
func (m *PrometheusMetrics) PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.RequestsInFlight.Inc()

		c.Next()

		m.RequestsInFlight.Dec()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RecordRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}
