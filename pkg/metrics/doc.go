/*
Package metrics defines and registers the queue core's Prometheus metrics
and exposes them for scraping via Handler.

# Metrics catalog

Queue lifecycle:
  - keyqueue_queues_active (gauge)
  - keyqueue_queue_operations_total{operation,outcome} (counter)

Publish:
  - keyqueue_events_published_total{queue} (counter)
  - keyqueue_events_rejected_total{kind} (counter)
  - keyqueue_publish_duration_seconds (histogram)

Sequence allocator:
  - keyqueue_sequence_allocations_total{queue} (counter)
  - keyqueue_sequence_wraparounds_total (counter)

Retention:
  - keyqueue_retention_trims_total (counter)
  - keyqueue_retention_entries_removed_total (counter)

Broadcast hub:
  - keyqueue_broadcast_drops_total{scope} (counter)
  - keyqueue_subscriptions_active{scope} (gauge)

Replay:
  - keyqueue_replay_duration_seconds{mode} (histogram)
  - keyqueue_replay_events_total{scope} (counter)

# Usage

	timer := metrics.NewTimer()
	ok, seq, err := mgr.SendToQueue(name, ev)
	timer.ObserveDuration(metrics.PublishDuration)

	http.Handle("/metrics", metrics.Handler())

pkg/queue.MetricsCollector polls a Manager on an interval to update the
gauges that aren't naturally updated inline by a publish or subscribe
call (active queue and subscription counts); it lives in pkg/queue
rather than here so that pkg/metrics never needs to import pkg/queue.

# Health

RegisterComponent/UpdateComponent track the health of named components
(the store, each default queue); HealthHandler, ReadyHandler, and
LivenessHandler serve /health, /ready, and /live respectively. Unlike a
cluster node, the core has no fixed set of "critical" components known in
advance, so readiness here means every component registered so far is
healthy, not membership in a hardcoded list.
*/
package metrics
