package queue

import (
	"time"

	"github.com/cuemby/keyqueue/pkg/metrics"
)

// MetricsCollector polls a Manager on an interval and updates the gauges
// that aren't naturally updated inline by a publish or subscribe call.
type MetricsCollector struct {
	manager *Manager
	stopCh  chan struct{}
}

// NewMetricsCollector creates a new metrics collector for mgr.
func NewMetricsCollector(mgr *Manager) *MetricsCollector {
	return &MetricsCollector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *MetricsCollector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
}

func (c *MetricsCollector) collect() {
	queues, wideSubs, keySubs := c.manager.Stats()

	metrics.QueuesActive.Set(float64(queues))
	metrics.SubscriptionsActive.WithLabelValues("queue").Set(float64(wideSubs))
	metrics.SubscriptionsActive.WithLabelValues("key").Set(float64(keySubs))
}
