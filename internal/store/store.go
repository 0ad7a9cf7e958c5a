// Package store abstracts the key-value backend that the cache service sits on.
//
// Three backends satisfy the same Store interface: a Redis server reached
// directly from a connection URL, a hosted Redis provider that needs a token
// and TLS, and an in-process memory store used when no URL is configured.
// Stores are thin pass-throughs: they return errors and leave the decision of
// what to do with them to the cache service.
package store

import (
	"context"
	"errors"
	"time"
)

// Backend identifies which implementation is active
type Backend string

const (
	BackendMemory      Backend = "memory"
	BackendRedis       Backend = "redis"
	BackendHosted      Backend = "hosted"
	BackendUnavailable Backend = "unavailable"
)

var (
	// ErrTokenRequired is returned when a hosted descriptor is configured without a token
	ErrTokenRequired = errors.New("hosted redis requires a token")
	// ErrUnavailable is returned by every operation of a store that could not be constructed
	ErrUnavailable = errors.New("cache store unavailable")
)

// Store is the uniform surface every backend provides
type Store interface {
	// Get returns the raw stored value. A missing key is ("", false, nil).
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a value without expiry
	Set(ctx context.Context, key, value string) error

	// SetEX stores a value that expires after ttl
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes keys and reports how many existed
	Del(ctx context.Context, keys ...string) (int64, error)

	// Keys lists the keys matching a glob pattern
	Keys(ctx context.Context, pattern string) ([]string, error)

	Exists(ctx context.Context, key string) (bool, error)

	// DBSize returns the number of keys in the store
	DBSize(ctx context.Context) (int64, error)

	// Info returns the server information blob as colon-delimited lines
	Info(ctx context.Context) (string, error)

	// FlushAll removes every key
	FlushAll(ctx context.Context) error

	Backend() Backend

	Close() error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Healthy reports whether s can currently reach its backend. Stores without
// a connection to lose are always healthy.
func Healthy(ctx context.Context, s Store) bool {
	p, ok := s.(pinger)
	if !ok {
		return true
	}
	return p.Ping(ctx) == nil
}

// unavailableStore stands in when the configured backend cannot be built.
// Every call fails so the cache service degrades to misses.
type unavailableStore struct {
	reason error
}

func (s *unavailableStore) err() error {
	if s.reason == nil {
		return ErrUnavailable
	}
	return errors.Join(ErrUnavailable, s.reason)
}

func (s *unavailableStore) Get(context.Context, string) (string, bool, error) {
	return "", false, s.err()
}
func (s *unavailableStore) Set(context.Context, string, string) error { return s.err() }
func (s *unavailableStore) SetEX(context.Context, string, string, time.Duration) error {
	return s.err()
}
func (s *unavailableStore) Del(context.Context, ...string) (int64, error)  { return 0, s.err() }
func (s *unavailableStore) Keys(context.Context, string) ([]string, error) { return nil, s.err() }
func (s *unavailableStore) Exists(context.Context, string) (bool, error)   { return false, s.err() }
func (s *unavailableStore) DBSize(context.Context) (int64, error)          { return 0, s.err() }
func (s *unavailableStore) Info(context.Context) (string, error)           { return "", s.err() }
func (s *unavailableStore) FlushAll(context.Context) error                 { return s.err() }
func (s *unavailableStore) Ping(context.Context) error                     { return s.err() }
func (s *unavailableStore) Backend() Backend                               { return BackendUnavailable }
func (s *unavailableStore) Close() error                                   { return nil }
