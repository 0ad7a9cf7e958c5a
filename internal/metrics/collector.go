package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/trustnet/trustnet-cache/internal/cache"
)

const collectTimeout = 5 * time.Second

// StatsSource is anything that can summarize the store
type StatsSource interface {
	Stats(ctx context.Context) cache.Stats
}

// Collector refreshes the store gauges on a cron schedule
type Collector struct {
	metrics  *PrometheusMetrics
	source   StatsSource
	schedule string
	cron     *cron.Cron
	logger   logrus.FieldLogger
}

// NewCollector creates a collector. The schedule uses the standard cron
// syntax plus descriptors such as "@every 30s".
func NewCollector(m *PrometheusMetrics, source StatsSource, schedule string, logger logrus.FieldLogger) *Collector {
	return &Collector{
		metrics:  m,
		source:   source,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.WithField("component", "metrics_collector"),
	}
}

// Start collects once and then on every tick of the schedule
func (c *Collector) Start() error {
	if _, err := c.cron.AddFunc(c.schedule, c.tick); err != nil {
		return fmt.Errorf("invalid collect schedule %q: %w", c.schedule, err)
	}
	c.tick()
	c.cron.Start()
	c.logger.WithField("schedule", c.schedule).Info("Metrics collector started")
	return nil
}

// Stop halts the schedule and waits for a running collection to finish
func (c *Collector) Stop() {
	<-c.cron.Stop().Done()
	c.logger.Info("Metrics collector stopped")
}

func (c *Collector) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()
	c.Collect(ctx)
}

// Collect reads the store stats and updates the gauges
func (c *Collector) Collect(ctx context.Context) {
	stats := c.source.Stats(ctx)

	var memory float64
	if raw, ok := stats.ServerInfo["used_memory"]; ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			memory = v
		}
	}
	c.metrics.UpdateStoreGauges(float64(stats.KeyCount), memory)
	c.logger.WithFields(logrus.Fields{
		"keys":   stats.KeyCount,
		"memory": stats.MemoryUsage,
	}).Debug("Collected store metrics")
}
