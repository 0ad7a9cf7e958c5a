package store

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures the circuit breaker around a remote store
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	RecoveryTimeout  time.Duration
	HalfOpenRequests uint32
	Interval         time.Duration
}

// BreakerStore fails fast once the wrapped store has failed FailureThreshold
// times in a row, so an unreachable Redis costs nothing per request until the
// recovery timeout lets a probe through.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps inner with a circuit breaker
func NewBreakerStore(inner Store, settings BreakerSettings, logger logrus.FieldLogger) *BreakerStore {
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.HalfOpenRequests,
		Interval:    settings.Interval,
		Timeout:     settings.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Cache store circuit breaker changed state")
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up is not a store failure
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerStore{inner: inner, cb: cb}
}

// State reports the breaker state
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

// Ping fails fast while the breaker is open; otherwise it pings the wrapped
// store through the breaker.
func (s *BreakerStore) Ping(ctx context.Context) error {
	if s.cb.State() == gobreaker.StateOpen {
		return gobreaker.ErrOpenState
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		if p, ok := s.inner.(pinger); ok {
			return nil, p.Ping(ctx)
		}
		return nil, nil
	})
	return err
}

func execute[T any](s *BreakerStore, fn func() (T, error)) (T, error) {
	result, err := s.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

type getResult struct {
	value string
	found bool
}

func (s *BreakerStore) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := execute(s, func() (getResult, error) {
		value, found, err := s.inner.Get(ctx, key)
		return getResult{value: value, found: found}, err
	})
	return res.value, res.found, err
}

func (s *BreakerStore) Set(ctx context.Context, key, value string) error {
	_, err := execute(s, func() (struct{}, error) {
		return struct{}{}, s.inner.Set(ctx, key, value)
	})
	return err
}

func (s *BreakerStore) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := execute(s, func() (struct{}, error) {
		return struct{}{}, s.inner.SetEX(ctx, key, value, ttl)
	})
	return err
}

func (s *BreakerStore) Del(ctx context.Context, keys ...string) (int64, error) {
	return execute(s, func() (int64, error) {
		return s.inner.Del(ctx, keys...)
	})
}

func (s *BreakerStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return execute(s, func() ([]string, error) {
		return s.inner.Keys(ctx, pattern)
	})
}

func (s *BreakerStore) Exists(ctx context.Context, key string) (bool, error) {
	return execute(s, func() (bool, error) {
		return s.inner.Exists(ctx, key)
	})
}

func (s *BreakerStore) DBSize(ctx context.Context) (int64, error) {
	return execute(s, func() (int64, error) {
		return s.inner.DBSize(ctx)
	})
}

func (s *BreakerStore) Info(ctx context.Context) (string, error) {
	return execute(s, func() (string, error) {
		return s.inner.Info(ctx)
	})
}

func (s *BreakerStore) FlushAll(ctx context.Context) error {
	_, err := execute(s, func() (struct{}, error) {
		return struct{}{}, s.inner.FlushAll(ctx)
	})
	return err
}

func (s *BreakerStore) Backend() Backend {
	return s.inner.Backend()
}

func (s *BreakerStore) Close() error {
	return s.inner.Close()
}
