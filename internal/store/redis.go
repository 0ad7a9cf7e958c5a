package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	defaultRedisPort = "6379"
	scanBatchSize    = 500
)

// RedisOptions bounds every client the factory builds
type RedisOptions struct {
	ConnectTimeout time.Duration
	MaxRetries     int
	PoolSize       int
}

// RedisStore implements Store on top of go-redis
type RedisStore struct {
	client    *redis.Client
	backend   Backend
	logger    logrus.FieldLogger
	connected sync.Once
}

// NewRedisStore builds a store for a directly reachable Redis server from a
// redis:// or rediss:// URL. A bare host:port is treated as redis://host:port.
func NewRedisStore(descriptor string, opts RedisOptions, logger logrus.FieldLogger) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(withScheme(descriptor))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	applyBounds(redisOpts, opts)
	return newRedisStore(redisOpts, BackendRedis, logger), nil
}

// NewHostedStore builds a store for a hosted Redis provider. The provider
// authenticates with token and is only reachable over TLS.
func NewHostedStore(descriptor, token string, opts RedisOptions, logger logrus.FieldLogger) (*RedisStore, error) {
	if token == "" {
		return nil, ErrTokenRequired
	}

	addr, username, err := hostedAddr(descriptor)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)

	redisOpts := &redis.Options{
		Addr:     addr,
		Username: username,
		Password: token,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: host,
		},
	}
	applyBounds(redisOpts, opts)
	return newRedisStore(redisOpts, BackendHosted, logger), nil
}

func newRedisStore(redisOpts *redis.Options, backend Backend, logger logrus.FieldLogger) *RedisStore {
	s := &RedisStore{
		backend: backend,
		logger:  logger.WithFields(logrus.Fields{"backend": backend, "addr": redisOpts.Addr}),
	}
	redisOpts.OnConnect = func(ctx context.Context, cn *redis.Conn) error {
		s.connected.Do(func() {
			s.logger.Info("Connected to Redis")
		})
		return nil
	}
	s.client = redis.NewClient(redisOpts)
	return s
}

func applyBounds(redisOpts *redis.Options, opts RedisOptions) {
	if opts.ConnectTimeout > 0 {
		redisOpts.DialTimeout = opts.ConnectTimeout
	}
	redisOpts.MaxRetries = opts.MaxRetries
	if opts.MaxRetries == 0 {
		// go-redis treats 0 as "use the default of 3"; -1 disables retries
		redisOpts.MaxRetries = -1
	}
	if opts.PoolSize > 0 {
		redisOpts.PoolSize = opts.PoolSize
	}
}

// hostedAddr accepts either a redis URL or the provider's https endpoint and
// returns the RESP address plus the username to authenticate as.
func hostedAddr(descriptor string) (string, string, error) {
	raw := descriptor
	if !strings.Contains(raw, "://") {
		raw = "rediss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse hosted Redis URL: %w", err)
	}
	if u.Hostname() == "" {
		return "", "", fmt.Errorf("hosted Redis URL %q has no host", descriptor)
	}

	port := u.Port()
	if port == "" || u.Scheme == "https" || u.Scheme == "http" {
		port = defaultRedisPort
	}

	username := "default"
	if u.User != nil && u.User.Username() != "" {
		username = u.User.Username()
	}
	return net.JoinHostPort(u.Hostname(), port), username, nil
}

// Ping checks connectivity within the dial timeout
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.client.Options().DialTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

// SetEX goes through SET so sub-second TTLs are sent as PX instead of being
// rounded up to whole seconds
func (s *RedisStore) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("invalid expire time %v for key %s", ttl, key)
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return s.client.Del(ctx, keys...).Result()
}

// Keys walks the keyspace with SCAN rather than KEYS so large keyspaces do not
// block the server
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	iter := s.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		seen[iter.Val()] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) DBSize(ctx context.Context) (int64, error) {
	return s.client.DBSize(ctx).Result()
}

func (s *RedisStore) Info(ctx context.Context) (string, error) {
	return s.client.Info(ctx).Result()
}

// FlushAll empties the selected database
func (s *RedisStore) FlushAll(ctx context.Context) error {
	return s.client.FlushDB(ctx).Err()
}

func (s *RedisStore) Backend() Backend {
	return s.backend
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
