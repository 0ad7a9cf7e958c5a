package cache

import (
	"context"
	"strings"
	"time"
)

// serverInfoFields are the INFO entries surfaced through Stats
var serverInfoFields = []string{
	"redis_version",
	"redis_mode",
	"uptime_in_seconds",
	"connected_clients",
	"used_memory",
	"used_memory_human",
	"used_memory_peak_human",
	"total_commands_processed",
	"keyspace_hits",
	"keyspace_misses",
	"evicted_keys",
	"expired_keys",
}

// Stats summarizes the store for operators
type Stats struct {
	Backend     string            `json:"backend" yaml:"backend"`
	KeyCount    int64             `json:"keyCount" yaml:"keyCount"`
	MemoryUsage string            `json:"memoryUsage" yaml:"memoryUsage"`
	ServerInfo  map[string]string `json:"serverInfo" yaml:"serverInfo"`
}

// Stats reports key count, memory usage and selected server info. Any store
// failure yields empty stats.
func (s *Service) Stats(ctx context.Context) (stats Stats) {
	stats = Stats{Backend: string(s.store.Backend()), ServerInfo: map[string]string{}}
	defer s.recoverPanic("stats", "")
	start := time.Now()

	count, err := s.store.DBSize(ctx)
	if err != nil {
		s.fail("stats", "", start, err)
		return stats
	}
	raw, err := s.store.Info(ctx)
	if err != nil {
		s.fail("stats", "", start, err)
		return stats
	}

	info := ParseInfo(raw)
	for _, field := range serverInfoFields {
		if value, ok := info[field]; ok {
			stats.ServerInfo[field] = value
		}
	}
	stats.KeyCount = count
	stats.MemoryUsage = info["used_memory_human"]

	s.recorder.ObserveCacheOperation("stats", ResultOK, time.Since(start))
	return stats
}

// ParseInfo turns the text returned by INFO into a field map. Section headers,
// blank lines and lines without a field name are skipped.
func ParseInfo(raw string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		fields[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return fields
}
