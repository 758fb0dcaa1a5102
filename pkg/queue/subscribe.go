package queue

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuemby/keyqueue/pkg/event"
)

// dedupKey identifies one persisted event for the stitcher's duplicate
// check: the same (key, sequence) pair can appear once in the historical
// scan and once more on the live receiver if the live subscription was
// opened before the scan ran, which is the discipline this package uses.
type dedupKey struct {
	key string
	seq uint64
}

// SubscribeQueue returns a stitched historical+live stream over every key
// in name. A nil replay means no historical replay: the subscription
// emits only events published after this call returns. Returns nil if
// name does not exist.
func (m *Manager) SubscribeQueue(ctx context.Context, name string, replay *event.ReplayMode) *event.Subscription {
	return m.subscribe(ctx, name, "", replay, true)
}

// SubscribeQueueByID returns a stitched historical+live stream scoped to a
// single key in name. Returns nil if name does not exist.
func (m *Manager) SubscribeQueueByID(ctx context.Context, name, key string, replay *event.ReplayMode) *event.Subscription {
	return m.subscribe(ctx, name, key, replay, false)
}

func (m *Manager) subscribe(ctx context.Context, name, key string, replay *event.ReplayMode, queueWide bool) *event.Subscription {
	if !m.exists(name) {
		return nil
	}
	hub := m.hubOf(name)

	// Subscribe to the live channel before running the historical scan
	// (the recommended subscribe-then-scan discipline), so no publish
	// occurring during the scan is missed.
	var live <-chan event.Event
	var cancelLive func()
	if queueWide {
		live, cancelLive = hub.SubscribeQueue()
	} else {
		live, cancelLive = hub.SubscribeKey(key)
	}

	var historical []event.Event
	var replayErr error
	if replay != nil {
		if queueWide {
			historical, replayErr = m.log.ReplayQueue(name, replay, m.newEvent)
		} else {
			historical, replayErr = m.log.ReplayKey(name, key, replay, m.newEvent)
		}
	}
	if replayErr != nil {
		replayErr = classify("subscribe", replayErr)
	}

	if len(historical) > 0 {
		historical[len(historical)-1].SetTerminal(true)
	}

	dedupSize := len(historical)
	if dedupSize == 0 {
		dedupSize = 1
	}
	seen, _ := lru.New[dedupKey, struct{}](dedupSize)
	for _, ev := range historical {
		seen.Add(dedupKey{ev.Key(), ev.Sequence()}, struct{}{})
	}

	streamCtx, cancel := context.WithCancel(ctx)
	out := make(chan event.BroadcastMessage, len(historical)+1)

	go stitch(streamCtx, out, historical, live, seen, replayErr)

	return event.NewSubscription(out, len(historical), replay != nil, func() {
		cancel()
		cancelLive()
	})
}

// stitch drains historical first, then forwards live events until the
// live receiver closes (the hub entry is gone) or ctx is cancelled. Live
// events whose (key, sequence) already appeared in historical are dropped
// once, since the live subscription predates the historical scan and may
// have buffered a duplicate of something the scan also captured.
func stitch(ctx context.Context, out chan<- event.BroadcastMessage, historical []event.Event, live <-chan event.Event, seen *lru.Cache[dedupKey, struct{}], replayErr error) {
	defer close(out)

	for _, ev := range historical {
		select {
		case out <- event.BroadcastMessage{Event: ev}:
		case <-ctx.Done():
			return
		}
	}

	if replayErr != nil {
		select {
		case out <- event.BroadcastMessage{Err: replayErr}:
		case <-ctx.Done():
		}
		return
	}

	for {
		select {
		case ev, ok := <-live:
			if !ok {
				return
			}
			dk := dedupKey{ev.Key(), ev.Sequence()}
			if _, dup := seen.Get(dk); dup {
				seen.Remove(dk)
				continue
			}
			select {
			case out <- event.BroadcastMessage{Event: ev}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
