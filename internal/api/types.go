package api

import (
	"time"

	"github.com/trustnet/trustnet-cache/internal/querykey"
)

// APIVersion represents the API version
const APIVersion = "v1"

// APIResponse represents a standard API response wrapper
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents a structured error response
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeInternal       ErrorType = "internal"
	ErrorTypeUnavailable    ErrorType = "unavailable"
)

// HealthResponse is returned by /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Backend   string    `json:"backend"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// KeyResponse describes a single cache entry
type KeyResponse struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value,omitempty"`
}

// InvalidateRequest removes every key matching Pattern
type InvalidateRequest struct {
	Pattern string `json:"pattern" binding:"required"`
}

// InvalidateResponse reports whether every invalidation step succeeded
type InvalidateResponse struct {
	Target      string `json:"target"`
	Invalidated bool   `json:"invalidated"`
}

// KeyRequest asks the server to derive a cache key
type KeyRequest struct {
	Resource   string                 `json:"resource" binding:"required"`
	Filters    map[string]interface{} `json:"filters,omitempty"`
	Pagination *querykey.Pagination   `json:"pagination,omitempty"`
}
