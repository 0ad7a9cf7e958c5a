package cache

import (
	"context"
	"time"
)

// Remember returns the value cached under key, or calls load, caches its
// result for ttl and returns it. Concurrent misses for the same key share a
// single load. A loader error is returned and nothing is cached; cache
// failures never are.
func Remember[T any](ctx context.Context, s *Service, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var cached T
	if s.GetInto(ctx, key, &cached) {
		return cached, nil
	}

	v, err, shared := s.loads.Do(key, func() (interface{}, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		s.Set(ctx, key, value, ttl)
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if shared {
		s.logger.WithField("key", key).Debug("Shared in-flight cache load")
	}
	value, _ := v.(T)
	return value, nil
}
