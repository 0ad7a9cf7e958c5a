package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete cache service configuration
type Config struct {
	Cache          CacheConfig          `yaml:"cache" json:"cache"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
	QueryMonitor   QueryMonitorConfig   `yaml:"query_monitor" json:"query_monitor"`
	Logging        LoggingConfig        `yaml:"logging" json:"logging"`
	Metrics        MetricsConfig        `yaml:"metrics" json:"metrics"`
	Admin          AdminConfig          `yaml:"admin" json:"admin"`
}

// CacheConfig describes how the backing store is selected and reached.
// An empty RedisURL selects the in-memory store.
type CacheConfig struct {
	RedisURL       string        `yaml:"redis_url" json:"redis_url"`
	RedisToken     string        `yaml:"redis_token" json:"-"`
	HostedMarker   string        `yaml:"hosted_marker" json:"hosted_marker"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	PoolSize       int           `yaml:"pool_size" json:"pool_size"`
	// CleanupInterval is how often the in-memory store purges expired entries.
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// CircuitBreakerConfig contains circuit breaker configuration for the remote store
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	HalfOpenRequests uint32        `yaml:"half_open_requests" json:"half_open_requests"`
	Interval         time.Duration `yaml:"interval" json:"interval"`
}

// QueryMonitorConfig contains query monitor configuration
type QueryMonitorConfig struct {
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold" json:"slow_query_threshold"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string            `yaml:"level" json:"level"`
	Format string            `yaml:"format" json:"format"`
	Output []string          `yaml:"output" json:"output"`
	File   string            `yaml:"file" json:"file"`
	Fields map[string]string `yaml:"fields" json:"fields"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Path            string `yaml:"path" json:"path"`
	Namespace       string `yaml:"namespace" json:"namespace"`
	Subsystem       string `yaml:"subsystem" json:"subsystem"`
	CollectSchedule string `yaml:"collect_schedule" json:"collect_schedule"`
}

// AdminConfig contains the admin HTTP server configuration
type AdminConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	JWTSecret       string        `yaml:"jwt_secret" json:"-"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	cfg.LoadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			HostedMarker:    "upstash.io",
			ConnectTimeout:  10 * time.Second,
			MaxRetries:      3,
			PoolSize:        10,
			CleanupInterval: time.Minute,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			HalfOpenRequests: 3,
			Interval:         time.Minute,
		},
		QueryMonitor: QueryMonitorConfig{
			SlowQueryThreshold: time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: []string{"stdout"},
			Fields: make(map[string]string),
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			Path:            "/metrics",
			Namespace:       "trustnet",
			Subsystem:       "cache",
			CollectSchedule: "@every 30s",
		},
		Admin: AdminConfig{
			Host:            "127.0.0.1",
			Port:            8090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	// Store selection
	if url := os.Getenv("REDIS_URL"); url != "" {
		c.Cache.RedisURL = url
	}
	if token := os.Getenv("UPSTASH_REDIS_TOKEN"); token != "" {
		c.Cache.RedisToken = token
	}
	if marker := os.Getenv("CACHE_HOSTED_MARKER"); marker != "" {
		c.Cache.HostedMarker = marker
	}
	if retries := getEnvInt("CACHE_MAX_RETRIES", -1); retries >= 0 {
		c.Cache.MaxRetries = retries
	}
	if timeout := getEnvDuration("CACHE_CONNECT_TIMEOUT", 0); timeout > 0 {
		c.Cache.ConnectTimeout = timeout
	}
	c.CircuitBreaker.Enabled = getEnvBool("CACHE_CIRCUIT_BREAKER", c.CircuitBreaker.Enabled)

	if threshold := getEnvDuration("SLOW_QUERY_THRESHOLD", 0); threshold > 0 {
		c.QueryMonitor.SlowQueryThreshold = threshold
	}

	// Logging configuration
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}

	// Admin server
	if host := os.Getenv("ADMIN_HOST"); host != "" {
		c.Admin.Host = host
	}
	if port := getEnvInt("ADMIN_PORT", 0); port != 0 {
		c.Admin.Port = port
	}
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		c.Admin.JWTSecret = secret
	}
	c.Metrics.Enabled = getEnvBool("METRICS_ENABLED", c.Metrics.Enabled)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Cache.ConnectTimeout <= 0 {
		return fmt.Errorf("cache connect_timeout must be positive")
	}
	if c.Cache.MaxRetries < 0 || c.Cache.MaxRetries > 10 {
		return fmt.Errorf("cache max_retries must be between 0 and 10, got %d", c.Cache.MaxRetries)
	}

	if c.CircuitBreaker.Enabled && c.CircuitBreaker.FailureThreshold == 0 {
		return fmt.Errorf("circuit breaker failure_threshold must be positive when enabled")
	}

	if c.QueryMonitor.SlowQueryThreshold <= 0 {
		return fmt.Errorf("slow_query_threshold must be positive")
	}

	if c.Admin.Port < 1 || c.Admin.Port > 65535 {
		return fmt.Errorf("invalid admin port: %d", c.Admin.Port)
	}

	validLogLevels := []string{"debug", "info", "warn", "warning", "error", "fatal"}
	if !contains(validLogLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validFormats := []string{"json", "text"}
	if !contains(validFormats, c.Logging.Format) {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// AdminAddr returns the host:port the admin server listens on
func (c *Config) AdminAddr() string {
	return fmt.Sprintf("%s:%d", c.Admin.Host, c.Admin.Port)
}

// Helper functions

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
