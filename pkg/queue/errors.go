package queue

import (
	"errors"
	"fmt"

	"github.com/cuemby/keyqueue/pkg/eventlog"
	"github.com/cuemby/keyqueue/pkg/sequence"
)

// ErrKind classifies a queue error into one of the five kinds the core
// distinguishes.
type ErrKind int

const (
	// ErrStore covers any failure surfaced by the embedded KV store: I/O,
	// corruption, space exhaustion.
	ErrStore ErrKind = iota
	// ErrEncode covers a payload serialization failure on publish.
	ErrEncode
	// ErrDecode covers a payload deserialization failure during replay.
	ErrDecode
	// ErrZeroSequence covers an allocator producing 0, which only
	// corruption or a malformed pre-existing counter value can cause.
	ErrZeroSequence
	// ErrReservedName covers an attempt to create or publish to a name
	// colliding with the reserved counter namespace.
	ErrReservedName
)

func (k ErrKind) String() string {
	switch k {
	case ErrStore:
		return "store"
	case ErrEncode:
		return "encode"
	case ErrDecode:
		return "decode"
	case ErrZeroSequence:
		return "zero_sequence"
	case ErrReservedName:
		return "reserved_name"
	default:
		return "unknown"
	}
}

// Error is the error type every Manager operation returns.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func newError(kind ErrKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("queue: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether the caller may retry the same operation
// unchanged and expect it to succeed.
func (e *Error) Transient() bool { return e.Kind == ErrStore }

// Corruption reports whether the failure indicates on-disk corruption or
// caller misuse that an operator must investigate, rather than something
// the caller can simply retry or fix in its input.
func (e *Error) Corruption() bool { return e.Kind == ErrZeroSequence }

// classify wraps a lower-layer error into the appropriate ErrKind. A nil
// err classifies to nil so call sites can write "return classify(...)"
// unconditionally.
func classify(op string, err error) *Error {
	if err == nil {
		return nil
	}

	var encErr *eventlog.EncodeError
	if errors.As(err, &encErr) {
		return newError(ErrEncode, op, err)
	}
	var decErr *eventlog.DecodeError
	if errors.As(err, &decErr) {
		return newError(ErrDecode, op, err)
	}
	if errors.Is(err, sequence.ErrZeroSequence) {
		return newError(ErrZeroSequence, op, err)
	}
	return newError(ErrStore, op, err)
}

func reservedNameError(op, name string) *Error {
	return newError(ErrReservedName, op, fmt.Errorf("queue: %q collides with the reserved counter namespace", name))
}
