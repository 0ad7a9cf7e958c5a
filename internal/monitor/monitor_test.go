package monitor

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observed struct {
	query    string
	duration time.Duration
	slow     bool
}

type fakeObserver struct {
	mu  sync.Mutex
	obs []observed
}

func (f *fakeObserver) ObserveQuery(query string, d time.Duration, slow bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, observed{query, d, slow})
}

func newTestMonitor(opts ...Option) (*Monitor, clockwork.FakeClock, *test.Hook) {
	logger, hook := test.NewNullLogger()
	clock := clockwork.NewFakeClock()
	opts = append([]Option{WithClock(clock)}, opts...)
	return New(logger, opts...), clock, hook
}

func TestStopFunctionCountsEveryCall(t *testing.T) {
	m, clock, _ := newTestMonitor()

	stop := m.StartTracking("q1")
	clock.Advance(10 * time.Millisecond)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 10*time.Millisecond, stop())
	}

	stats := m.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, QueryStat{
		Query:     "q1",
		Count:     3,
		TotalTime: 30 * time.Millisecond,
		AvgTime:   10 * time.Millisecond,
	}, stats[0])
}

func TestStatsSortedByAverageDescending(t *testing.T) {
	m, clock, _ := newTestMonitor()

	fast := m.StartTracking("listBusinesses")
	slow := m.StartTracking("searchBusinesses")
	clock.Advance(5 * time.Millisecond)
	fast()
	clock.Advance(45 * time.Millisecond)
	slow()
	fast2 := m.StartTracking("listBusinesses")
	clock.Advance(15 * time.Millisecond)
	fast2()

	getUser := m.StartTracking("getUser")
	clock.Advance(50 * time.Millisecond)
	getUser()

	stats := m.Stats()
	require.Len(t, stats, 3)
	assert.Equal(t, "getUser", stats[0].Query)
	assert.Equal(t, "searchBusinesses", stats[1].Query)
	assert.Equal(t, "listBusinesses", stats[2].Query)
	assert.Equal(t, int64(2), stats[2].Count)
	assert.Equal(t, 10*time.Millisecond, stats[2].AvgTime)
}

func TestSlowQueryWarning(t *testing.T) {
	obs := &fakeObserver{}
	m, clock, hook := newTestMonitor(WithThreshold(100*time.Millisecond), WithObserver(obs))

	stop := m.StartTracking("fast")
	clock.Advance(100 * time.Millisecond)
	stop()
	assert.Empty(t, hook.AllEntries(), "a call at the threshold is not slow")

	stop = m.StartTracking("slow")
	clock.Advance(101 * time.Millisecond)
	stop()

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "slow", entry.Data["query"])
	assert.Equal(t, int64(101), entry.Data["duration_ms"])

	assert.Equal(t, []observed{
		{"fast", 100 * time.Millisecond, false},
		{"slow", 101 * time.Millisecond, true},
	}, obs.obs)
}

func TestDefaultThreshold(t *testing.T) {
	m, _, _ := newTestMonitor(WithThreshold(0))
	assert.Equal(t, DefaultSlowQueryThreshold, m.Threshold())
}

func TestTrackRecordsErrors(t *testing.T) {
	m, _, _ := newTestMonitor()
	boom := errors.New("boom")

	assert.NoError(t, m.Track("ok", func() error { return nil }))
	assert.ErrorIs(t, m.Track("failing", func() error { return boom }), boom)

	stats := m.Stats()
	require.Len(t, stats, 2)
	for _, s := range stats {
		assert.Equal(t, int64(1), s.Count)
	}
}

func TestReset(t *testing.T) {
	m, _, _ := newTestMonitor()
	m.StartTracking("q")()
	require.Len(t, m.Stats(), 1)

	m.Reset()
	assert.Empty(t, m.Stats())
}

func TestConcurrentTracking(t *testing.T) {
	m, _, _ := newTestMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.StartTracking("q")()
		}()
	}
	wg.Wait()

	stats := m.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(50), stats[0].Count)
}

func TestQueryStatJSON(t *testing.T) {
	data, err := json.Marshal(QueryStat{
		Query:     "q1",
		Count:     2,
		TotalTime: 3 * time.Millisecond,
		AvgTime:   1500 * time.Microsecond,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"q1","count":2,"totalTimeMs":3,"avgTimeMs":1.5}`, string(data))
}
