/*
Package event defines the data contracts the queue core exchanges with
producers and consumers.

The core never inspects a payload body. It calls into every event through
four operations only: read the key, read the sequence, write the sequence,
write the terminal flag. Anything implementing the Event interface can be
published and replayed.
*/
package event

import "context"

// Event is the capability surface the queue core requires of a payload.
// Sequence returns 0 when the caller has not supplied one; the core then
// allocates the next value and calls SetSequence before persisting.
type Event interface {
	Key() string
	Sequence() uint64
	SetSequence(seq uint64)
	Terminal() bool
	SetTerminal(terminal bool)
}

// Envelope is a concrete, opaque-bodied Event used by the CLI and by tests.
// Body is never interpreted by the core; it is just a byte payload.
type Envelope struct {
	EventKey string `msgpack:"key"`
	Seq      uint64 `msgpack:"sequence,omitempty"`
	Body     []byte `msgpack:"body"`

	// last is a transport hint set by the core on the final event of a
	// replay batch. Unexported fields are skipped by msgpack, so it is
	// never persisted.
	last bool
}

// NewEnvelope builds an Envelope with no sequence assigned yet.
func NewEnvelope(key string, body []byte) *Envelope {
	return &Envelope{EventKey: key, Body: body}
}

func (e *Envelope) Key() string            { return e.EventKey }
func (e *Envelope) Sequence() uint64       { return e.Seq }
func (e *Envelope) SetSequence(seq uint64) { e.Seq = seq }
func (e *Envelope) Terminal() bool         { return e.last }
func (e *Envelope) SetTerminal(t bool)     { e.last = t }

// Clone returns a copy of the envelope safe to hand to a separate
// subscriber without aliasing the terminal flag or backing body slice.
func (e *Envelope) Clone() *Envelope {
	body := make([]byte, len(e.Body))
	copy(body, e.Body)
	return &Envelope{EventKey: e.EventKey, Seq: e.Seq, Body: body, last: e.last}
}

// CloneEvent satisfies the optional Cloner interface pkg/queue uses to
// broadcast a copy of a published event instead of the caller's own value.
func (e *Envelope) CloneEvent() Event { return e.Clone() }

// Cloner is implemented by event types that can hand out an independent
// copy of themselves. Types that don't implement it are broadcast by
// shared reference instead; that is safe only if the caller never mutates
// a published event after calling SendToQueue.
type Cloner interface {
	CloneEvent() Event
}

// ReplayKind selects which historical events a replay mode yields.
type ReplayKind int

const (
	// ReplayID replays every persisted event with sequence >= Since.
	ReplayID ReplayKind = iota
	// ReplayFirst replays every persisted event, in storage order.
	ReplayFirst
	// ReplayLast replays only the most recent persisted event per key.
	ReplayLast
)

// ReplayMode selects a historical replay before live broadcast begins.
// A nil *ReplayMode means no replay: the subscription emits only events
// published after it is created.
type ReplayMode struct {
	Kind  ReplayKind
	Since uint64 // meaningful only when Kind == ReplayID
}

// ByID replays events with sequence >= s.
func ByID(s uint64) *ReplayMode { return &ReplayMode{Kind: ReplayID, Since: s} }

// First replays every persisted event in storage order.
func First() *ReplayMode { return &ReplayMode{Kind: ReplayFirst} }

// Last replays only the newest event per key.
func Last() *ReplayMode { return &ReplayMode{Kind: ReplayLast} }

// BroadcastMessage is the unit carried on a subscription stream, whether
// drawn from the historical replay or forwarded live. Err is set only once,
// on the final message of a stream that terminates because a historical
// replay failed to deserialize; no further messages follow it.
type BroadcastMessage struct {
	Event Event
	Err   error
}

// Subscription is a handle to a stitched historical+live stream. A nil
// *Subscription (returned for a non-existent queue) has no stream and no
// preload count.
type Subscription struct {
	stream    chan BroadcastMessage
	preloaded int
	hasReplay bool
	cancel    context.CancelFunc
}

// Stream returns the channel of broadcast messages, or nil if this
// subscription targets a queue that does not exist.
func (s *Subscription) Stream() <-chan BroadcastMessage {
	if s == nil {
		return nil
	}
	return s.stream
}

// Preloaded reports the number of historical events that will be emitted
// before live events, and whether a preload count applies at all (it does
// not when the subscription was created without a replay mode).
func (s *Subscription) Preloaded() (int, bool) {
	if s == nil {
		return 0, false
	}
	return s.preloaded, s.hasReplay
}

// Close cancels the subscription. It is safe to call more than once and
// safe to call on a nil Subscription (the non-existent-queue case).
func (s *Subscription) Close() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
}

// NewSubscription constructs a live subscription. pkg/queue uses it to
// build the subscriptions returned by Manager.SubscribeQueue and
// Manager.SubscribeQueueByID.
func NewSubscription(stream chan BroadcastMessage, preloaded int, hasReplay bool, cancel context.CancelFunc) *Subscription {
	return &Subscription{stream: stream, preloaded: preloaded, hasReplay: hasReplay, cancel: cancel}
}
