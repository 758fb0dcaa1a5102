package sequence

import (
	"encoding/binary"
	"errors"

	"github.com/cuemby/keyqueue/pkg/log"
	"github.com/cuemby/keyqueue/pkg/metrics"
	"github.com/cuemby/keyqueue/pkg/storekv"
)

// ReservedBucket holds every sequence counter, isolated from event bodies.
var ReservedBucket = []byte("__sequences__")

// ErrZeroSequence is returned when a counter update produces 0, which can
// only happen from corruption or a malformed pre-existing value.
var ErrZeroSequence = errors.New("sequence: allocator produced zero")

// Allocator hands out the next sequence number for a (queue, key) pair.
type Allocator struct {
	store *storekv.Store
}

// NewAllocator returns an Allocator backed by store.
func NewAllocator(store *storekv.Store) *Allocator {
	return &Allocator{store: store}
}

// Next returns the next sequence for (queue, key), starting at 1. On
// uint64 overflow it wraps back around to 1 rather than erroring, an
// intentional wraparound matched to the allocator's compare-and-swap
// contract rather than a surfaced error condition.
func (a *Allocator) Next(queue, key string) (uint64, error) {
	counterKey := counterKey(queue, key)

	var wrapped bool
	next, err := a.store.UpdateAndFetch(ReservedBucket, counterKey, func(old []byte) []byte {
		var n uint64
		if len(old) == 8 {
			n = binary.BigEndian.Uint64(old)
		}
		n++
		if n == 0 {
			// old was the absent case, which never lands here (0+1=1), so
			// this is a genuine wraparound from max uint64.
			wrapped = true
			n = 1
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, n)
		return buf
	})
	if err != nil {
		return 0, err
	}

	n := binary.BigEndian.Uint64(next)
	if n == 0 {
		return 0, ErrZeroSequence
	}
	if wrapped {
		metrics.SequenceWraparoundsTotal.Inc()
		logger := log.WithQueue(queue)
		logger.Warn().Str("key", key).Msg("sequence counter wrapped around uint64 max, reinitialized to 1")
	}
	return n, nil
}

func counterKey(queue, key string) []byte {
	buf := make([]byte, 0, len("id_")+len(queue)+len(key))
	buf = append(buf, "id_"...)
	buf = append(buf, queue...)
	buf = append(buf, key...)
	return buf
}
