// Package cache is the error-isolation boundary of the caching subsystem.
//
// Every Service method converts store failures into the value a cold cache
// would produce: nil/false for reads, false for writes, zero Stats. Callers
// always fall through to the authoritative source, so a broken cache only
// costs latency.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/trustnet/trustnet-cache/internal/store"
)

// Operation results reported to the Recorder
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultOK    = "ok"
	ResultError = "error"
)

// Recorder receives one observation per cache operation
type Recorder interface {
	ObserveCacheOperation(operation, result string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCacheOperation(string, string, time.Duration) {}

// Service provides the primitive cache operations over a Store
type Service struct {
	store    store.Store
	logger   logrus.FieldLogger
	recorder Recorder
	loads    singleflight.Group
}

// Option configures a Service
type Option func(*Service)

// WithRecorder reports operation outcomes to r
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewService creates a cache service backed by st
func NewService(st store.Store, logger logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		store:    st,
		logger:   logger.WithField("component", "cache"),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend reports which store backend is active
func (s *Service) Backend() store.Backend {
	return s.store.Backend()
}

// Healthy reports whether the store is currently reachable
func (s *Service) Healthy(ctx context.Context) (ok bool) {
	defer s.recoverPanic("health", "")
	return store.Healthy(ctx, s.store)
}

// Get returns the decoded value stored under key. Values that are not JSON
// are returned as the raw string. Misses and store errors both return
// (nil, false).
func (s *Service) Get(ctx context.Context, key string) (value interface{}, found bool) {
	defer s.recoverPanic("get", key)
	start := time.Now()

	raw, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.fail("get", key, start, err)
		return nil, false
	}
	if !found {
		s.recorder.ObserveCacheOperation("get", ResultMiss, time.Since(start))
		return nil, false
	}

	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}
	s.recorder.ObserveCacheOperation("get", ResultHit, time.Since(start))
	return value, true
}

// GetInto decodes the value stored under key into dest. It returns false on a
// miss, a store error, or a value that does not decode into dest.
func (s *Service) GetInto(ctx context.Context, key string, dest interface{}) (found bool) {
	defer s.recoverPanic("get", key)
	start := time.Now()

	raw, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.fail("get", key, start, err)
		return false
	}
	if !found {
		s.recorder.ObserveCacheOperation("get", ResultMiss, time.Since(start))
		return false
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Cached value does not decode into requested type")
		s.recorder.ObserveCacheOperation("get", ResultMiss, time.Since(start))
		return false
	}
	s.recorder.ObserveCacheOperation("get", ResultHit, time.Since(start))
	return true
}

// Set JSON-encodes value and stores it. A positive ttl sets an expiry; zero or
// negative stores the value without one.
func (s *Service) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) (ok bool) {
	defer s.recoverPanic("set", key)
	start := time.Now()

	data, err := json.Marshal(value)
	if err != nil {
		s.fail("set", key, start, err)
		return false
	}

	if ttl > 0 {
		err = s.store.SetEX(ctx, key, string(data), ttl)
	} else {
		err = s.store.Set(ctx, key, string(data))
	}
	if err != nil {
		s.fail("set", key, start, err)
		return false
	}

	s.recorder.ObserveCacheOperation("set", ResultOK, time.Since(start))
	return true
}

// Delete removes key. Deleting an absent key succeeds.
func (s *Service) Delete(ctx context.Context, key string) (ok bool) {
	defer s.recoverPanic("delete", key)
	start := time.Now()

	if _, err := s.store.Del(ctx, key); err != nil {
		s.fail("delete", key, start, err)
		return false
	}
	s.recorder.ObserveCacheOperation("delete", ResultOK, time.Since(start))
	return true
}

// DeleteByPattern removes every key matching the glob pattern in one batch.
// If listing fails nothing is deleted and false is returned.
func (s *Service) DeleteByPattern(ctx context.Context, pattern string) (ok bool) {
	defer s.recoverPanic("delete_pattern", pattern)
	start := time.Now()

	keys, err := s.store.Keys(ctx, pattern)
	if err != nil {
		s.fail("delete_pattern", pattern, start, err)
		return false
	}
	if len(keys) == 0 {
		s.recorder.ObserveCacheOperation("delete_pattern", ResultOK, time.Since(start))
		return true
	}

	removed, err := s.store.Del(ctx, keys...)
	if err != nil {
		s.fail("delete_pattern", pattern, start, err)
		return false
	}

	s.logger.WithFields(logrus.Fields{
		"pattern": pattern,
		"count":   removed,
	}).Info("Invalidated cache keys")
	s.recorder.ObserveCacheOperation("delete_pattern", ResultOK, time.Since(start))
	return true
}

// Exists reports whether key is present. Store errors report false.
func (s *Service) Exists(ctx context.Context, key string) (exists bool) {
	defer s.recoverPanic("exists", key)
	start := time.Now()

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		s.fail("exists", key, start, err)
		return false
	}
	s.recorder.ObserveCacheOperation("exists", ResultOK, time.Since(start))
	return exists
}

// FlushAll removes every key in the store. Only administrative paths call it.
func (s *Service) FlushAll(ctx context.Context) (ok bool) {
	defer s.recoverPanic("flush", "*")
	start := time.Now()

	s.logger.WithField("backend", s.store.Backend()).Warn("Flushing entire cache")
	if err := s.store.FlushAll(ctx); err != nil {
		s.fail("flush", "*", start, err)
		return false
	}
	s.logger.Warn("Cache flushed")
	s.recorder.ObserveCacheOperation("flush", ResultOK, time.Since(start))
	return true
}

func (s *Service) fail(operation, key string, start time.Time, err error) {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"operation": operation,
		"key":       key,
	}).Error("Cache operation failed")
	s.recorder.ObserveCacheOperation(operation, ResultError, time.Since(start))
}

// recoverPanic keeps a misbehaving store from crashing the caller; the
// method's zero-valued named results become its return values
func (s *Service) recoverPanic(operation, key string) {
	if r := recover(); r != nil {
		s.logger.WithFields(logrus.Fields{
			"operation": operation,
			"key":       key,
			"panic":     r,
		}).Error("Cache operation panicked")
		s.recorder.ObserveCacheOperation(operation, ResultError, 0)
	}
}
