package broadcast

import (
	"sync"

	"github.com/cuemby/keyqueue/pkg/event"
	"github.com/cuemby/keyqueue/pkg/metrics"
)

// DefaultCapacity is the recommended per-subscriber channel capacity.
const DefaultCapacity = 1024

// subscriberSet is a set of independently buffered channels that all
// receive every value passed to publish. Get-or-insert of the set itself
// is handled one level up, in Hub; subscriberSet only manages its own
// subscriber channels.
type subscriberSet struct {
	mu       sync.Mutex
	capacity int
	scope    string
	subs     map[chan event.Event]struct{}
}

func newSubscriberSet(capacity int, scope string) *subscriberSet {
	return &subscriberSet{capacity: capacity, scope: scope, subs: make(map[chan event.Event]struct{})}
}

// subscribe registers a new receiver and returns it along with a cancel
// function that unregisters and closes it. Cancel is idempotent.
func (s *subscriberSet) subscribe() (<-chan event.Event, func()) {
	ch := make(chan event.Event, s.capacity)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// publish sends v to every current subscriber, never blocking. A
// subscriber whose buffer is full has its oldest message dropped to make
// room, so overflow always drops the oldest entry rather than the newest.
func (s *subscriberSet) publish(v event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
				metrics.BroadcastDropsTotal.WithLabelValues(s.scope).Inc()
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// Hub is the per-queue broadcast record: one queue-wide subscriber set and
// a lazily-populated map from key to that key's subscriber set.
type Hub struct {
	capacity int
	wide     *subscriberSet

	mu   sync.RWMutex
	keys map[string]*subscriberSet
}

// NewHub returns a Hub whose subscriber channels buffer up to capacity
// messages each.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		capacity: capacity,
		wide:     newSubscriberSet(capacity, "queue"),
		keys:     make(map[string]*subscriberSet),
	}
}

// keySet returns the subscriber set for key, creating it on first use. The
// read path takes the fast shared-lock route; only a genuine first access
// takes the write lock, and a second check under that lock prevents two
// concurrent first-time callers from creating two sets.
func (h *Hub) keySet(key string) *subscriberSet {
	h.mu.RLock()
	s, ok := h.keys[key]
	h.mu.RUnlock()
	if ok {
		return s
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.keys[key]; ok {
		return s
	}
	s = newSubscriberSet(h.capacity, "key")
	h.keys[key] = s
	return s
}

// Publish sends ev into the queue-wide channel and then into ev's
// per-key channel.
func (h *Hub) Publish(ev event.Event) {
	h.wide.publish(ev)
	h.keySet(ev.Key()).publish(ev)
}

// SubscribeQueue returns a live receiver for every event published to the
// queue, regardless of key.
func (h *Hub) SubscribeQueue() (<-chan event.Event, func()) {
	return h.wide.subscribe()
}

// SubscribeKey returns a live receiver for events published under key.
func (h *Hub) SubscribeKey(key string) (<-chan event.Event, func()) {
	return h.keySet(key).subscribe()
}

// DropKey removes key's subscriber-set entry from the hub entirely.
// Receivers already handed out for key keep working independently until
// their own cancel is called; a future SubscribeKey or Publish for the
// same key lazily recreates a fresh, empty set.
func (h *Hub) DropKey(key string) {
	h.mu.Lock()
	delete(h.keys, key)
	h.mu.Unlock()
}

// Stats reports the current number of queue-wide subscribers and the sum
// of per-key subscribers across every key, for metrics collection.
func (h *Hub) Stats() (wideSubs int, keySubs int) {
	h.wide.mu.Lock()
	wideSubs = len(h.wide.subs)
	h.wide.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.keys {
		s.mu.Lock()
		keySubs += len(s.subs)
		s.mu.Unlock()
	}
	return wideSubs, keySubs
}
