package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is the development fallback used when no Redis URL is configured.
// Entries honour their TTL; a janitor purges expired ones every cleanupInterval.
type MemoryStore struct {
	items     *gocache.Cache
	startedAt time.Time
	hits      atomic.Int64
	misses    atomic.Int64
}

// NewMemoryStore creates an in-memory store
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryStore{
		items:     gocache.New(gocache.NoExpiration, cleanupInterval),
		startedAt: time.Now(),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, found := s.items.Get(key)
	if !found {
		s.misses.Add(1)
		return "", false, nil
	}
	s.hits.Add(1)
	return v.(string), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.items.Set(key, value, gocache.NoExpiration)
	return nil
}

func (s *MemoryStore) SetEX(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("invalid expire time %v for key %s", ttl, key)
	}
	s.items.Set(key, value, ttl)
	return nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) (int64, error) {
	var removed int64
	for _, key := range keys {
		if _, found := s.items.Get(key); found {
			removed++
		}
		s.items.Delete(key)
	}
	return removed, nil
}

// Keys lists live keys matching pattern, sorted for stable output
func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	matcher, err := CompileGlob(pattern)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0)
	for key := range s.items.Items() {
		if matcher.Match(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	_, found := s.items.Get(key)
	return found, nil
}

func (s *MemoryStore) DBSize(_ context.Context) (int64, error) {
	// Items skips entries that have expired but not yet been purged
	return int64(len(s.items.Items())), nil
}

// Info renders the same sections a Redis INFO reply carries so that the
// cache service parses both backends identically
func (s *MemoryStore) Info(_ context.Context) (string, error) {
	items := s.items.Items()
	var used int64
	for key, item := range items {
		used += int64(len(key))
		if v, ok := item.Object.(string); ok {
			used += int64(len(v))
		}
	}

	var b strings.Builder
	b.WriteString("# Server\r\n")
	b.WriteString("redis_version:memory\r\n")
	b.WriteString("redis_mode:standalone\r\n")
	fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n", int64(time.Since(s.startedAt).Seconds()))
	b.WriteString("\r\n# Clients\r\n")
	b.WriteString("connected_clients:1\r\n")
	b.WriteString("\r\n# Memory\r\n")
	fmt.Fprintf(&b, "used_memory:%d\r\n", used)
	fmt.Fprintf(&b, "used_memory_human:%s\r\n", humanBytes(used))
	b.WriteString("\r\n# Stats\r\n")
	fmt.Fprintf(&b, "keyspace_hits:%d\r\n", s.hits.Load())
	fmt.Fprintf(&b, "keyspace_misses:%d\r\n", s.misses.Load())
	b.WriteString("\r\n# Keyspace\r\n")
	fmt.Fprintf(&b, "db0:keys=%d,expires=0,avg_ttl=0\r\n", len(items))
	return b.String(), nil
}

func (s *MemoryStore) FlushAll(_ context.Context) error {
	s.items.Flush()
	return nil
}

func (s *MemoryStore) Backend() Backend {
	return BackendMemory
}

func (s *MemoryStore) Close() error {
	return nil
}

// humanBytes formats a byte count the way Redis formats used_memory_human
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	value := float64(n)
	suffixes := []string{"K", "M", "G", "T", "P"}
	i := -1
	for value >= unit && i < len(suffixes)-1 {
		value /= unit
		i++
	}
	return fmt.Sprintf("%.2f%s", value, suffixes[i])
}
