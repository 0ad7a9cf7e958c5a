// Package monitor keeps per-query latency counters for the life of the
// process. It is a debugging aid; nothing is persisted.
package monitor

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// DefaultSlowQueryThreshold is used when no threshold is configured
const DefaultSlowQueryThreshold = time.Second

// Observer receives every tracked duration
type Observer interface {
	ObserveQuery(query string, duration time.Duration, slow bool)
}

// QueryStat is the aggregate for one query identifier
type QueryStat struct {
	Query     string
	Count     int64
	TotalTime time.Duration
	AvgTime   time.Duration
}

// MarshalJSON renders durations in milliseconds
func (s QueryStat) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Query     string  `json:"query"`
		Count     int64   `json:"count"`
		TotalTime float64 `json:"totalTimeMs"`
		AvgTime   float64 `json:"avgTimeMs"`
	}{
		Query:     s.Query,
		Count:     s.Count,
		TotalTime: milliseconds(s.TotalTime),
		AvgTime:   milliseconds(s.AvgTime),
	})
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type counter struct {
	count int64
	total time.Duration
}

// Monitor tracks query invocations
type Monitor struct {
	mu        sync.Mutex
	counters  map[string]*counter
	threshold time.Duration
	clock     clockwork.Clock
	observer  Observer
	logger    logrus.FieldLogger
}

// Option configures a Monitor
type Option func(*Monitor)

// WithClock replaces the wall clock, mainly for tests
func WithClock(clock clockwork.Clock) Option {
	return func(m *Monitor) {
		m.clock = clock
	}
}

// WithThreshold sets the duration above which a single call is logged as slow
func WithThreshold(threshold time.Duration) Option {
	return func(m *Monitor) {
		if threshold > 0 {
			m.threshold = threshold
		}
	}
}

// WithObserver forwards every tracked duration to o
func WithObserver(o Observer) Option {
	return func(m *Monitor) {
		m.observer = o
	}
}

// New creates a monitor
func New(logger logrus.FieldLogger, opts ...Option) *Monitor {
	m := &Monitor{
		counters:  make(map[string]*counter),
		threshold: DefaultSlowQueryThreshold,
		clock:     clockwork.NewRealClock(),
		logger:    logger.WithField("component", "query_monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the slow-query threshold in effect
func (m *Monitor) Threshold() time.Duration {
	return m.threshold
}

// StartTracking marks the start of a query and returns the function that
// records it. Each call of the returned function records one invocation,
// measured from the same start, and returns its duration.
func (m *Monitor) StartTracking(query string) func() time.Duration {
	start := m.clock.Now()
	return func() time.Duration {
		elapsed := m.clock.Since(start)
		m.record(query, elapsed)
		return elapsed
	}
}

// Track runs fn and records its duration under query
func (m *Monitor) Track(query string, fn func() error) error {
	stop := m.StartTracking(query)
	defer stop()
	return fn()
}

func (m *Monitor) record(query string, elapsed time.Duration) {
	m.mu.Lock()
	c, ok := m.counters[query]
	if !ok {
		c = &counter{}
		m.counters[query] = c
	}
	c.count++
	c.total += elapsed
	m.mu.Unlock()

	slow := elapsed > m.threshold
	if slow {
		m.logger.WithFields(logrus.Fields{
			"query":       query,
			"duration_ms": elapsed.Milliseconds(),
			"threshold":   m.threshold.String(),
		}).Warn("Slow query detected")
	}
	if m.observer != nil {
		m.observer.ObserveQuery(query, elapsed, slow)
	}
}

// Stats returns every tracked query, slowest average first
func (m *Monitor) Stats() []QueryStat {
	m.mu.Lock()
	stats := make([]QueryStat, 0, len(m.counters))
	for query, c := range m.counters {
		stats = append(stats, QueryStat{
			Query:     query,
			Count:     c.count,
			TotalTime: c.total,
			AvgTime:   c.total / time.Duration(c.count),
		})
	}
	m.mu.Unlock()

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].AvgTime != stats[j].AvgTime {
			return stats[i].AvgTime > stats[j].AvgTime
		}
		return stats[i].Query < stats[j].Query
	})
	return stats
}

// Reset clears all counters
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = make(map[string]*counter)
}
