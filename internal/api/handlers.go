package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trustnet/trustnet-cache/internal/cache"
	"github.com/trustnet/trustnet-cache/internal/monitor"
	"github.com/trustnet/trustnet-cache/internal/querykey"
	"github.com/trustnet/trustnet-cache/internal/store"
	"github.com/trustnet/trustnet-cache/internal/strategies"
)

// CacheHandler serves the cache administration endpoints
type CacheHandler struct {
	cache      *cache.Service
	strategies *strategies.Strategies
	version    string
}

const healthCheckTimeout = 2 * time.Second

// NewCacheHandler creates a cache handler
func NewCacheHandler(svc *cache.Service, strat *strategies.Strategies, version string) *CacheHandler {
	return &CacheHandler{cache: svc, strategies: strat, version: version}
}

// GetHealth reports liveness and the active backend. An unreachable store or
// an open circuit breaker reports degraded; the cache still answers, just
// with misses.
func (h *CacheHandler) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := "healthy"
	if !h.cache.Healthy(ctx) {
		status = "degraded"
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:    status,
		Backend:   string(h.cache.Backend()),
		Version:   h.version,
		Timestamp: GetCurrentTime(),
	})
}

// GetStats returns key count, memory usage and server info
func (h *CacheHandler) GetStats(c *gin.Context) {
	respondOK(c, h.cache.Stats(c.Request.Context()))
}

// GetKey returns the decoded value of one key
func (h *CacheHandler) GetKey(c *gin.Context) {
	key := keyParam(c)
	value, found := h.cache.Get(c.Request.Context(), key)
	if !found {
		respondError(c, http.StatusNotFound, ErrorTypeNotFound, "KEY_NOT_FOUND", "Key not found: "+key)
		return
	}
	respondOK(c, KeyResponse{Key: key, Value: value})
}

// HeadKey reports existence through the status code only
func (h *CacheHandler) HeadKey(c *gin.Context) {
	if h.cache.Exists(c.Request.Context(), keyParam(c)) {
		c.Status(http.StatusOK)
		return
	}
	c.Status(http.StatusNotFound)
}

// DeleteKey removes one key; deleting an absent key succeeds
func (h *CacheHandler) DeleteKey(c *gin.Context) {
	key := keyParam(c)
	if !h.cache.Delete(c.Request.Context(), key) {
		respondError(c, http.StatusServiceUnavailable, ErrorTypeUnavailable, "DELETE_FAILED", "Cache store did not accept the delete")
		return
	}
	respondOK(c, KeyResponse{Key: key})
}

// InvalidatePattern removes every key matching a glob pattern
func (h *CacheHandler) InvalidatePattern(c *gin.Context) {
	var req InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrorTypeValidation, "INVALID_REQUEST", err.Error())
		return
	}
	if _, err := store.CompileGlob(req.Pattern); err != nil {
		respondError(c, http.StatusBadRequest, ErrorTypeValidation, "INVALID_PATTERN", err.Error())
		return
	}
	h.respondInvalidation(c, req.Pattern, h.cache.DeleteByPattern(c.Request.Context(), req.Pattern))
}

// InvalidateBusiness runs the business invalidation fan-out
func (h *CacheHandler) InvalidateBusiness(c *gin.Context) {
	id := c.Param("id")
	h.respondInvalidation(c, "business:"+id, h.strategies.InvalidateBusiness(c.Request.Context(), id))
}

// InvalidateUser runs the user invalidation fan-out
func (h *CacheHandler) InvalidateUser(c *gin.Context) {
	id := c.Param("id")
	h.respondInvalidation(c, "user:"+id, h.strategies.InvalidateUser(c.Request.Context(), id))
}

// Flush removes every key
func (h *CacheHandler) Flush(c *gin.Context) {
	h.respondInvalidation(c, "*", h.cache.FlushAll(c.Request.Context()))
}

func (h *CacheHandler) respondInvalidation(c *gin.Context, target string, ok bool) {
	resp := InvalidateResponse{Target: target, Invalidated: ok}
	if !ok {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    resp,
			Error: &APIError{
				Type:    ErrorTypeUnavailable,
				Code:    "INVALIDATION_INCOMPLETE",
				Message: "One or more invalidation steps failed",
			},
			RequestID: GetRequestID(c),
			Timestamp: GetCurrentTime(),
		})
		return
	}
	respondOK(c, resp)
}

// DeriveKey returns the cache key for a resource and its parameters
func (h *CacheHandler) DeriveKey(c *gin.Context) {
	var req KeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrorTypeValidation, "INVALID_REQUEST", err.Error())
		return
	}
	respondOK(c, KeyResponse{Key: querykey.Generate(req.Resource, req.Filters, req.Pagination)})
}

func keyParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("key"), "/")
}

// QueryHandler serves the query monitor and analyzer endpoints
type QueryHandler struct {
	monitor *monitor.Monitor
}

// NewQueryHandler creates a query handler
func NewQueryHandler(m *monitor.Monitor) *QueryHandler {
	return &QueryHandler{monitor: m}
}

// GetStats returns tracked queries, slowest average first
func (h *QueryHandler) GetStats(c *gin.Context) {
	respondOK(c, h.monitor.Stats())
}

// Reset clears the monitor
func (h *QueryHandler) Reset(c *gin.Context) {
	h.monitor.Reset()
	respondOK(c, gin.H{"reset": true})
}

// Analyze scores a proposed query
func (h *QueryHandler) Analyze(c *gin.Context) {
	var q querykey.Query
	if err := c.ShouldBindJSON(&q); err != nil {
		respondError(c, http.StatusBadRequest, ErrorTypeValidation, "INVALID_REQUEST", err.Error())
		return
	}
	respondOK(c, querykey.Analyze(q))
}
