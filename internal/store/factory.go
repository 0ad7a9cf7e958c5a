package store

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/trustnet/trustnet-cache/internal/config"
)

var (
	defaultOnce  sync.Once
	defaultStore Store
)

// Select decides which backend a connection descriptor refers to
func Select(descriptor, hostedMarker string) Backend {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		return BackendMemory
	}
	if hostedMarker != "" && strings.Contains(strings.ToLower(hostOf(descriptor)), strings.ToLower(hostedMarker)) {
		return BackendHosted
	}
	return BackendRedis
}

func hostOf(descriptor string) string {
	if u, err := url.Parse(withScheme(descriptor)); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return descriptor
}

// withScheme prefixes redis:// onto descriptors given as a bare host:port
func withScheme(descriptor string) string {
	descriptor = strings.TrimSpace(descriptor)
	if !strings.Contains(descriptor, "://") {
		return "redis://" + descriptor
	}
	return descriptor
}

// New builds the store selected by cfg.RedisURL. Remote stores are pinged
// once; a failed ping is logged and the store is still returned, since the
// client reconnects on later calls. Misconfiguration is returned as an error.
func New(cfg *config.Config, logger logrus.FieldLogger) (Store, error) {
	log := logger.WithField("component", "store")
	opts := RedisOptions{
		ConnectTimeout: cfg.Cache.ConnectTimeout,
		MaxRetries:     cfg.Cache.MaxRetries,
		PoolSize:       cfg.Cache.PoolSize,
	}

	var remote *RedisStore
	var err error
	switch Select(cfg.Cache.RedisURL, cfg.Cache.HostedMarker) {
	case BackendMemory:
		log.Warn("No Redis URL configured, using in-memory cache store")
		return NewMemoryStore(cfg.Cache.CleanupInterval), nil
	case BackendHosted:
		remote, err = NewHostedStore(cfg.Cache.RedisURL, cfg.Cache.RedisToken, opts, log)
	default:
		remote, err = NewRedisStore(cfg.Cache.RedisURL, opts, log)
	}
	if err != nil {
		return nil, err
	}

	if pingErr := remote.Ping(context.Background()); pingErr != nil {
		log.WithError(pingErr).Error("Redis connection failed, cache operations will degrade to misses")
	}

	if !cfg.CircuitBreaker.Enabled {
		return remote, nil
	}
	return NewBreakerStore(remote, BreakerSettings{
		Name:             "cache-store",
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		RecoveryTimeout:  cfg.CircuitBreaker.RecoveryTimeout,
		HalfOpenRequests: cfg.CircuitBreaker.HalfOpenRequests,
		Interval:         cfg.CircuitBreaker.Interval,
	}, log), nil
}

// Default returns the process-wide store, constructing it on first use.
// Later calls ignore their arguments. If construction fails the returned
// store rejects every call, which the cache service turns into misses.
func Default(cfg *config.Config, logger logrus.FieldLogger) Store {
	defaultOnce.Do(func() {
		s, err := New(cfg, logger)
		if err != nil {
			logger.WithError(err).Error("Cache store misconfigured, caching disabled")
			s = &unavailableStore{reason: err}
		}
		defaultStore = s
	})
	return defaultStore
}
