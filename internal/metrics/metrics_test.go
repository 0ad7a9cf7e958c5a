package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustnet/trustnet-cache/internal/cache"
	"github.com/trustnet/trustnet-cache/internal/monitor"
	"github.com/trustnet/trustnet-cache/internal/store"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestCacheServiceFeedsMetrics(t *testing.T) {
	m := NewPrometheusMetrics("trustnet", "cache")
	svc := cache.NewService(store.NewMemoryStore(time.Minute), discardLogger(), cache.WithRecorder(m))
	ctx := context.Background()

	svc.Get(ctx, "business:1")
	svc.Set(ctx, "business:1", "x", time.Minute)
	svc.Get(ctx, "business:1")
	svc.Get(ctx, "business:1")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheOperations.WithLabelValues("set", cache.ResultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheOperations.WithLabelValues("get", cache.ResultHit)))
}

func TestErrorsAreCountedPerOperation(t *testing.T) {
	m := NewPrometheusMetrics("trustnet", "cache")

	m.ObserveCacheOperation("get", cache.ResultError, time.Millisecond)
	m.ObserveCacheOperation("get", cache.ResultError, time.Millisecond)
	m.ObserveCacheOperation("delete_pattern", cache.ResultError, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheErrors.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheErrors.WithLabelValues("delete_pattern")))
}

func TestMonitorFeedsSlowQueries(t *testing.T) {
	m := NewPrometheusMetrics("trustnet", "cache")
	mon := monitor.New(discardLogger(), monitor.WithObserver(m), monitor.WithThreshold(time.Nanosecond))

	stop := mon.StartTracking("searchBusinesses")
	time.Sleep(time.Millisecond)
	stop()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SlowQueries.WithLabelValues("searchBusinesses")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.QueryDuration))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewPrometheusMetrics("trustnet", "cache")
	m.UpdateStoreGauges(3, 1024)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trustnet_cache_keys 3")
	assert.Contains(t, rec.Body.String(), "trustnet_cache_memory_bytes 1024")
}

func TestPrometheusMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewPrometheusMetrics("trustnet", "cache")

	router := gin.New()
	router.Use(m.PrometheusMiddleware())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RequestsInFlight))
}

type fixedStats struct {
	stats cache.Stats
}

func (f fixedStats) Stats(context.Context) cache.Stats {
	return f.stats
}

func TestCollectorUpdatesGauges(t *testing.T) {
	m := NewPrometheusMetrics("trustnet", "cache")
	c := NewCollector(m, fixedStats{cache.Stats{
		KeyCount:    12,
		MemoryUsage: "2.00K",
		ServerInfo:  map[string]string{"used_memory": "2048"},
	}}, "@every 1h", discardLogger())

	require.NoError(t, c.Start())
	defer c.Stop()

	assert.Equal(t, 12.0, testutil.ToFloat64(m.CacheKeys))
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.CacheMemoryBytes))
}

func TestCollectorFromCacheService(t *testing.T) {
	m := NewPrometheusMetrics("trustnet", "cache")
	svc := cache.NewService(store.NewMemoryStore(time.Minute), discardLogger())
	ctx := context.Background()
	svc.Set(ctx, "a", "1", 0)
	svc.Set(ctx, "b", "2", 0)

	NewCollector(m, svc, "@every 1h", discardLogger()).Collect(ctx)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheKeys))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.CacheMemoryBytes))
}

func TestCollectorRejectsBadSchedule(t *testing.T) {
	m := NewPrometheusMetrics("trustnet", "cache")
	err := NewCollector(m, fixedStats{}, "every now and then", discardLogger()).Start()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid collect schedule"))
}
