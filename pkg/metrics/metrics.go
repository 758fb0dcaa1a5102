package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue lifecycle metrics
	QueuesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "keyqueue_queues_active",
			Help: "Number of queues currently open",
		},
	)

	QueueOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyqueue_queue_operations_total",
			Help: "Total number of create/delete/close queue operations by kind and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// Publish metrics
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyqueue_events_published_total",
			Help: "Total number of events accepted by send_to_queue, by queue",
		},
		[]string{"queue"},
	)

	EventsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyqueue_events_rejected_total",
			Help: "Total number of send_to_queue calls that failed, by error kind",
		},
		[]string{"kind"},
	)

	PublishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keyqueue_publish_duration_seconds",
			Help:    "Time taken by send_to_queue, store write included",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Sequence allocator metrics
	SequenceAllocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyqueue_sequence_allocations_total",
			Help: "Total number of sequence numbers allocated, by queue",
		},
		[]string{"queue"},
	)

	SequenceWraparoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keyqueue_sequence_wraparounds_total",
			Help: "Total number of counter overflows that re-initialized to 1",
		},
	)

	// Retention metrics
	RetentionTrimsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keyqueue_retention_trims_total",
			Help: "Total number of per-key retention trim operations performed",
		},
	)

	RetentionEntriesRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keyqueue_retention_entries_removed_total",
			Help: "Total number of stale entries removed by retention trimming",
		},
	)

	// Broadcast hub metrics
	BroadcastDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyqueue_broadcast_drops_total",
			Help: "Total number of oldest-buffered-message drops due to a full subscriber channel, by scope",
		},
		[]string{"scope"}, // "queue" or "key"
	)

	SubscriptionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keyqueue_subscriptions_active",
			Help: "Number of live subscriptions currently open, by scope",
		},
		[]string{"scope"},
	)

	// Replay metrics
	ReplayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keyqueue_replay_duration_seconds",
			Help:    "Time taken to build the historical portion of a subscription, by mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"}, // "id", "first", "last"
	)

	ReplayEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyqueue_replay_events_total",
			Help: "Total number of historical events delivered by replay, by scope",
		},
		[]string{"scope"},
	)
)

func init() {
	prometheus.MustRegister(QueuesActive)
	prometheus.MustRegister(QueueOperationsTotal)
	prometheus.MustRegister(EventsPublishedTotal)
	prometheus.MustRegister(EventsRejectedTotal)
	prometheus.MustRegister(PublishDuration)
	prometheus.MustRegister(SequenceAllocationsTotal)
	prometheus.MustRegister(SequenceWraparoundsTotal)
	prometheus.MustRegister(RetentionTrimsTotal)
	prometheus.MustRegister(RetentionEntriesRemovedTotal)
	prometheus.MustRegister(BroadcastDropsTotal)
	prometheus.MustRegister(SubscriptionsActive)
	prometheus.MustRegister(ReplayDuration)
	prometheus.MustRegister(ReplayEventsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
