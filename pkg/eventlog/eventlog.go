package eventlog

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/cuemby/keyqueue/pkg/event"
	"github.com/cuemby/keyqueue/pkg/log"
	"github.com/cuemby/keyqueue/pkg/metrics"
	"github.com/cuemby/keyqueue/pkg/storekv"
)

// EncodeError wraps a failure to marshal an event for persistence,
// distinguishing it from a raw storekv I/O failure.
type EncodeError struct{ Err error }

func (e *EncodeError) Error() string { return fmt.Sprintf("eventlog: encode: %v", e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError wraps a failure to unmarshal a persisted event.
type DecodeError struct{ Err error }

func (e *DecodeError) Error() string { return fmt.Sprintf("eventlog: decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder builds a fresh, empty Event for Unmarshal to populate. A Log is
// bound to exactly one concrete Event type per queue manager.
type Decoder func() event.Event

// Log appends and replays events against one storekv.Store.
type Log struct {
	store *storekv.Store
}

// New returns a Log backed by store.
func New(store *storekv.Store) *Log {
	return &Log{store: store}
}

// StorageKey builds the composite key bytes(key) || be64(sequence).
func StorageKey(key string, seq uint64) []byte {
	buf := make([]byte, len(key)+8)
	copy(buf, key)
	binary.BigEndian.PutUint64(buf[len(key):], seq)
	return buf
}

// Append persists ev under its storage key and enforces retention.
//
// maxKeyUpdates nil means unbounded retention. A pointer to 0 disables
// persistence entirely (the allocator and broadcast still run; nothing is
// written here). A pointer to M>0 retains only the M most recent events
// for ev's key.
func (l *Log) Append(bucket string, ev event.Event, maxKeyUpdates *int) error {
	if maxKeyUpdates != nil && *maxKeyUpdates == 0 {
		return nil
	}

	data, err := msgpack.Marshal(ev)
	if err != nil {
		return &EncodeError{Err: err}
	}

	storageKey := StorageKey(ev.Key(), ev.Sequence())
	if err := l.store.Put([]byte(bucket), storageKey, data); err != nil {
		return err
	}

	if maxKeyUpdates == nil || *maxKeyUpdates <= 0 {
		return nil
	}
	return l.trim(bucket, ev.Key(), *maxKeyUpdates)
}

// trim keeps the M most recent entries for key and removes the rest in one
// atomic batch. Best-effort and non-atomic with the preceding insert: a
// concurrent publisher for the same key may transiently leave up to
// M+concurrency entries visible.
func (l *Log) trim(bucket, key string, m int) error {
	newestFirst, err := l.store.ScanPrefix([]byte(bucket), []byte(key), true)
	if err != nil {
		return err
	}
	if len(newestFirst) <= m {
		return nil
	}
	stale := newestFirst[m:]
	removals := make([][]byte, len(stale))
	for i, kv := range stale {
		removals[i] = kv.Key
	}
	if err := l.store.ApplyBatch([]byte(bucket), removals, nil); err != nil {
		return err
	}
	metrics.RetentionTrimsTotal.Inc()
	metrics.RetentionEntriesRemovedTotal.Add(float64(len(stale)))
	logger := log.WithQueue(bucket)
	logger.Debug().Str("key", key).Int("removed", len(stale)).Int("kept", m).
		Msg("retention trim removed stale entries")
	return nil
}

// DeleteKey removes every persisted event under key's prefix in one atomic
// batch.
func (l *Log) DeleteKey(bucket, key string) error {
	kvs, err := l.store.ScanPrefix([]byte(bucket), []byte(key), false)
	if err != nil {
		return err
	}
	if len(kvs) == 0 {
		return nil
	}
	removals := make([][]byte, len(kvs))
	for i, kv := range kvs {
		removals[i] = kv.Key
	}
	return l.store.ApplyBatch([]byte(bucket), removals, nil)
}

// ReplayKey resolves a historical replay scoped to a single key:
//
//	ReplayID:    range scan [key||be64(s) .. key||be64(max)]
//	ReplayFirst: prefix scan forward
//	ReplayLast:  prefix scan reverse, take 1
func (l *Log) ReplayKey(bucket, key string, mode *event.ReplayMode, newEvent Decoder) ([]event.Event, error) {
	if mode == nil {
		return nil, nil
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReplayDuration, replayModeLabel(mode.Kind))

	var kvs []storekv.KV
	var err error
	switch mode.Kind {
	case event.ReplayID:
		start := StorageKey(key, mode.Since)
		end := StorageKey(key, ^uint64(0))
		kvs, err = l.store.ScanRange([]byte(bucket), start, end)
	case event.ReplayLast:
		kvs, err = l.store.ScanPrefix([]byte(bucket), []byte(key), true)
		if len(kvs) > 1 {
			kvs = kvs[:1]
		}
	default: // ReplayFirst
		kvs, err = l.store.ScanPrefix([]byte(bucket), []byte(key), false)
	}
	if err != nil {
		return nil, err
	}

	out, err := decodeAll(kvs, newEvent)
	if err == nil {
		metrics.ReplayEventsTotal.WithLabelValues("key").Add(float64(len(out)))
	}
	return out, err
}

// ReplayQueue resolves a historical replay over every event in bucket:
//
//	ReplayID:    keep events with sequence >= Since
//	ReplayFirst: keep all, storage order
//	ReplayLast:  one representative per key, last-in-iteration-order wins,
//	             results ordered by key (an ordered-map dedup)
func (l *Log) ReplayQueue(bucket string, mode *event.ReplayMode, newEvent Decoder) ([]event.Event, error) {
	if mode == nil {
		return nil, nil
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReplayDuration, replayModeLabel(mode.Kind))

	kvs, err := l.store.ScanAll([]byte(bucket))
	if err != nil {
		return nil, err
	}

	all, err := decodeAll(kvs, newEvent)
	if err != nil {
		return nil, err
	}

	var out []event.Event
	switch mode.Kind {
	case event.ReplayID:
		filtered := all[:0]
		for _, ev := range all {
			if ev.Sequence() >= mode.Since {
				filtered = append(filtered, ev)
			}
		}
		out = filtered
	case event.ReplayLast:
		byKey := make(map[string]event.Event, len(all))
		for _, ev := range all {
			byKey[ev.Key()] = ev
		}
		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		deduped := make([]event.Event, 0, len(keys))
		for _, k := range keys {
			deduped = append(deduped, byKey[k])
		}
		out = deduped
	default: // ReplayFirst
		out = all
	}

	metrics.ReplayEventsTotal.WithLabelValues("queue").Add(float64(len(out)))
	return out, nil
}

// replayModeLabel maps a replay mode to the metrics label used for
// keyqueue_replay_duration_seconds.
func replayModeLabel(kind event.ReplayKind) string {
	switch kind {
	case event.ReplayID:
		return "id"
	case event.ReplayLast:
		return "last"
	default:
		return "first"
	}
}

func decodeAll(kvs []storekv.KV, newEvent Decoder) ([]event.Event, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make([]event.Event, 0, len(kvs))
	for _, kv := range kvs {
		ev := newEvent()
		if err := msgpack.Unmarshal(kv.Value, ev); err != nil {
			return nil, &DecodeError{Err: err}
		}
		out = append(out, ev)
	}
	return out, nil
}
