package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/trustnet/trustnet-cache/internal/cache"
	"github.com/trustnet/trustnet-cache/internal/logging"
	"github.com/trustnet/trustnet-cache/internal/metrics"
	"github.com/trustnet/trustnet-cache/internal/monitor"
	"github.com/trustnet/trustnet-cache/internal/strategies"
)

// RouterConfig contains configuration for the API router
type RouterConfig struct {
	Cache       *cache.Service
	Strategies  *strategies.Strategies
	Monitor     *monitor.Monitor
	Metrics     *metrics.PrometheusMetrics
	MetricsPath string
	Logger      logrus.FieldLogger
	Version     string
	// JWTSecret enables bearer authentication on /api/v1 when set
	JWTSecret string
}

// NewRouter creates a new Gin router with all admin endpoints configured
func NewRouter(config *RouterConfig) *gin.Engine {
	if config.Logger == nil {
		config.Logger = logging.NewNop()
	}
	router := gin.New()
	// route on the escaped path so ids and keys may carry an encoded '/'
	router.UseRawPath = true

	router.Use(RequestIDMiddleware())
	router.Use(ErrorHandlingMiddleware(config.Logger))
	router.Use(LoggingMiddleware(config.Logger))
	router.Use(SecurityHeadersMiddleware())
	if config.Metrics != nil {
		router.Use(config.Metrics.PrometheusMiddleware())
	}

	cacheHandler := NewCacheHandler(config.Cache, config.Strategies, config.Version)
	queryHandler := NewQueryHandler(config.Monitor)

	// Health and metrics are unauthenticated
	router.GET("/health", cacheHandler.GetHealth)
	if config.Metrics != nil {
		path := config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(config.Metrics.Handler()))
	}

	v1 := router.Group("/api/" + APIVersion)
	if config.JWTSecret != "" {
		v1.Use(JWTAuthMiddleware(config.JWTSecret))
	}
	{
		cacheGroup := v1.Group("/cache")
		{
			cacheGroup.GET("/stats", cacheHandler.GetStats)
			cacheGroup.GET("/keys/*key", cacheHandler.GetKey)
			cacheGroup.HEAD("/keys/*key", cacheHandler.HeadKey)
			cacheGroup.DELETE("/keys/*key", cacheHandler.DeleteKey)
			cacheGroup.POST("/invalidate", cacheHandler.InvalidatePattern)
			cacheGroup.POST("/invalidate/business/:id", cacheHandler.InvalidateBusiness)
			cacheGroup.POST("/invalidate/user/:id", cacheHandler.InvalidateUser)
			cacheGroup.POST("/flush", cacheHandler.Flush)
		}

		queries := v1.Group("/queries")
		{
			queries.GET("/stats", queryHandler.GetStats)
			queries.POST("/reset", queryHandler.Reset)
			queries.POST("/analyze", queryHandler.Analyze)
		}

		v1.POST("/keys", cacheHandler.DeriveKey)
	}

	return router
}
