package queue

import (
	"sync"

	"github.com/cuemby/keyqueue/pkg/broadcast"
	"github.com/cuemby/keyqueue/pkg/event"
	"github.com/cuemby/keyqueue/pkg/eventlog"
	"github.com/cuemby/keyqueue/pkg/log"
	"github.com/cuemby/keyqueue/pkg/metrics"
	"github.com/cuemby/keyqueue/pkg/sequence"
	"github.com/cuemby/keyqueue/pkg/storekv"
)

// isReserved reports whether name collides with the sequence allocator's
// reserved bucket, which may not be used as a queue name.
func isReserved(name string) bool {
	return name == string(sequence.ReservedBucket)
}

// Manager is the queue core: one embedded store, one sequence allocator,
// one event log, and a lazily-populated registry of per-queue broadcast
// hubs. A queue "exists" exactly when its bucket exists in the store; no
// separate existence map is kept, matching the by-tree-membership check
// the design calls for.
type Manager struct {
	store         *storekv.Store
	alloc         *sequence.Allocator
	log           *eventlog.Log
	newEvent      eventlog.Decoder
	maxKeyUpdates *int
	hubCapacity   int

	mu   sync.RWMutex
	hubs map[string]*broadcast.Hub
}

// NewManager returns a Manager backed by store. newEvent builds a fresh,
// empty event of the concrete type this manager persists and replays.
// maxKeyUpdates follows the three-way retention contract: nil is
// unbounded, a pointer to 0 disables persistence, a pointer to M>0 keeps
// the M most recent events per key.
func NewManager(store *storekv.Store, newEvent eventlog.Decoder, maxKeyUpdates *int) *Manager {
	return &Manager{
		store:         store,
		alloc:         sequence.NewAllocator(store),
		log:           eventlog.New(store),
		newEvent:      newEvent,
		maxKeyUpdates: maxKeyUpdates,
		hubCapacity:   broadcast.DefaultCapacity,
		hubs:          make(map[string]*broadcast.Hub),
	}
}

// exists reports whether name's tree is present in the store.
func (m *Manager) exists(name string) bool {
	return m.store.BucketExists([]byte(name))
}

// hubOf returns name's broadcast hub, creating it on first use. The
// double-checked lock means concurrent first-time callers for the same
// name all observe a single created Hub.
func (m *Manager) hubOf(name string) *broadcast.Hub {
	m.mu.RLock()
	h, ok := m.hubs[name]
	m.mu.RUnlock()
	if ok {
		return h
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.hubs[name]; ok {
		return h
	}
	h = broadcast.NewHub(m.hubCapacity)
	m.hubs[name] = h
	return h
}

// hubIfPresent returns name's hub only if one has already been created,
// without the side effect of creating one.
func (m *Manager) hubIfPresent(name string) (*broadcast.Hub, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hubs[name]
	return h, ok
}

// CreateQueue opens (or creates) name's tree. Idempotent: calling it again
// for an existing queue is a no-op success, and a hub is created for the
// queue if one does not already exist.
func (m *Manager) CreateQueue(name string) error {
	if isReserved(name) {
		metrics.QueueOperationsTotal.WithLabelValues("create", "rejected").Inc()
		logger := log.WithQueue(name)
		logger.Warn().Msg("rejected create_queue: name collides with the reserved counter namespace")
		return reservedNameError("create_queue", name)
	}
	if err := m.store.CreateBucket([]byte(name)); err != nil {
		metrics.QueueOperationsTotal.WithLabelValues("create", "error").Inc()
		logger := log.WithQueue(name)
		logger.Error().Err(err).Msg("create_queue failed")
		return classify("create_queue", err)
	}
	m.hubOf(name)
	metrics.QueueOperationsTotal.WithLabelValues("create", "ok").Inc()
	logger := log.WithQueue(name)
	logger.Info().Msg("queue created")
	return nil
}

// DeleteQueue removes every persisted event for key from name's tree and
// drops key's per-key hub entry. The queue-wide hub and other keys are
// unaffected.
func (m *Manager) DeleteQueue(name, key string) error {
	if err := m.log.DeleteKey(name, key); err != nil {
		metrics.QueueOperationsTotal.WithLabelValues("delete", "error").Inc()
		logger := log.WithQueue(name)
		logger.Error().Err(err).Str("key", key).Msg("delete_queue failed")
		return classify("delete_queue", err)
	}
	if h, ok := m.hubIfPresent(name); ok {
		h.DropKey(key)
	}
	metrics.QueueOperationsTotal.WithLabelValues("delete", "ok").Inc()
	logger := log.WithQueue(name)
	logger.Info().Str("key", key).Msg("deleted all persisted events for key")
	return nil
}

// CloseQueue removes name's in-memory hub and drops its tree from the
// store. The returned bool reports whether the tree existed.
func (m *Manager) CloseQueue(name string) (bool, error) {
	m.mu.Lock()
	delete(m.hubs, name)
	m.mu.Unlock()

	existed, err := m.store.DropBucket([]byte(name))
	if err != nil {
		metrics.QueueOperationsTotal.WithLabelValues("close", "error").Inc()
		logger := log.WithQueue(name)
		logger.Error().Err(err).Msg("close_queue failed")
		return existed, classify("close_queue", err)
	}
	metrics.QueueOperationsTotal.WithLabelValues("close", "ok").Inc()
	logger := log.WithQueue(name)
	logger.Info().Bool("existed", existed).Msg("queue closed")
	return existed, nil
}

// SendToQueue publishes ev to name. If the event carries no sequence
// (Sequence() == 0), the allocator assigns the next one for (name,
// ev.Key()) and writes it back; a caller-supplied sequence is used
// verbatim and does not advance the allocator. Returns (false, nil, nil)
// if name does not exist, with no side effects.
func (m *Manager) SendToQueue(name string, ev event.Event) (bool, *uint64, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PublishDuration)

	if isReserved(name) {
		metrics.EventsRejectedTotal.WithLabelValues(ErrReservedName.String()).Inc()
		logger := log.WithQueue(name)
		logger.Warn().Str("key", ev.Key()).Msg("rejected send_to_queue: name collides with the reserved counter namespace")
		return false, nil, reservedNameError("send_to_queue", name)
	}
	if !m.exists(name) {
		return false, nil, nil
	}

	seq := ev.Sequence()
	if seq == 0 {
		next, err := m.alloc.Next(name, ev.Key())
		if err != nil {
			qerr := classify("send_to_queue", err)
			metrics.EventsRejectedTotal.WithLabelValues(qerr.Kind.String()).Inc()
			if qerr.Kind == ErrZeroSequence {
				logger := log.WithQueue(name)
				logger.Error().Str("key", ev.Key()).Msg("sequence allocator produced zero, counter may be corrupted")
			}
			return false, nil, qerr
		}
		seq = next
		ev.SetSequence(seq)
		metrics.SequenceAllocationsTotal.WithLabelValues(name).Inc()
	}

	if err := m.log.Append(name, ev, m.maxKeyUpdates); err != nil {
		qerr := classify("send_to_queue", err)
		metrics.EventsRejectedTotal.WithLabelValues(qerr.Kind.String()).Inc()
		logger := log.WithQueue(name)
		logger.Error().Err(err).Str("key", ev.Key()).Msg("send_to_queue append failed")
		return false, nil, qerr
	}

	m.hubOf(name).Publish(cloneEvent(ev))
	metrics.EventsPublishedTotal.WithLabelValues(name).Inc()

	return true, &seq, nil
}

// Stats reports the number of queues with an open hub and the current
// subscriber counts across all of them, for metrics collection.
func (m *Manager) Stats() (queues, wideSubs, keySubs int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	queues = len(m.hubs)
	for _, h := range m.hubs {
		w, k := h.Stats()
		wideSubs += w
		keySubs += k
	}
	return queues, wideSubs, keySubs
}

// cloneEvent returns an independent copy of ev when ev implements
// event.Cloner, so the broadcast value never aliases the caller's event.
// The one copy is shared by the queue-wide and per-key sends and by every
// receiver. Types that don't implement Cloner are broadcast by shared
// reference.
func cloneEvent(ev event.Event) event.Event {
	if c, ok := ev.(event.Cloner); ok {
		return c.CloneEvent()
	}
	return ev
}
