package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/keyqueue/pkg/event"
	"github.com/cuemby/keyqueue/pkg/storekv"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	store, err := storekv.Open(storekv.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func newEnvelope() event.Event { return &event.Envelope{} }

func put(t *testing.T, log *Log, bucket, key string, seq uint64, body string, cap *int) {
	t.Helper()
	ev := event.NewEnvelope(key, []byte(body))
	ev.SetSequence(seq)
	require.NoError(t, log.Append(bucket, ev, cap))
}

// TestAppendAndTrimKeepsNewestM covers spec scenario 1: three publishes
// under one key with max_key_updates = 2 leaves only the two newest.
func TestAppendAndTrimKeepsNewestM(t *testing.T) {
	log := newTestLog(t)
	m := 2

	put(t, log, "q", "a", 1, "x1", &m)
	put(t, log, "q", "a", 2, "x2", &m)
	put(t, log, "q", "a", 3, "x3", &m)

	got, err := log.ReplayKey("q", "a", event.First(), newEnvelope)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Sequence())
	assert.Equal(t, uint64(3), got[1].Sequence())
}

func TestAppendWithZeroCapPersistsNothing(t *testing.T) {
	log := newTestLog(t)
	zero := 0

	put(t, log, "q", "k", 1, "v", &zero)

	got, err := log.ReplayKey("q", "k", event.First(), newEnvelope)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppendWithNilCapIsUnbounded(t *testing.T) {
	log := newTestLog(t)

	for i := uint64(1); i <= 10; i++ {
		put(t, log, "q", "k", i, "v", nil)
	}

	got, err := log.ReplayKey("q", "k", event.First(), newEnvelope)
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

// TestRoundTripPreservesPayloadAndSequence covers spec invariant 4.
func TestRoundTripPreservesPayloadAndSequence(t *testing.T) {
	log := newTestLog(t)

	put(t, log, "q", "k", 1, "payload", nil)

	got, err := log.ReplayKey("q", "k", event.First(), newEnvelope)
	require.NoError(t, err)
	require.Len(t, got, 1)

	env := got[0].(*event.Envelope)
	assert.Equal(t, uint64(1), env.Sequence())
	assert.Equal(t, []byte("payload"), env.Body)
}

func TestReplayKeyByID(t *testing.T) {
	log := newTestLog(t)
	for i := uint64(1); i <= 5; i++ {
		put(t, log, "q", "k", i, "v", nil)
	}

	got, err := log.ReplayKey("q", "k", event.ByID(3), newEnvelope)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[0].Sequence())
	assert.Equal(t, uint64(5), got[2].Sequence())
}

func TestReplayKeyByIDBeyondMaxYieldsEmpty(t *testing.T) {
	log := newTestLog(t)
	put(t, log, "q", "k", 1, "v", nil)

	got, err := log.ReplayKey("q", "k", event.ByID(1000), newEnvelope)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReplayKeyLastTakesMostRecent(t *testing.T) {
	log := newTestLog(t)
	for i := uint64(1); i <= 3; i++ {
		put(t, log, "q", "k", i, "v", nil)
	}

	got, err := log.ReplayKey("q", "k", event.Last(), newEnvelope)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].Sequence())
}

// TestReplayQueueLastOnePerKey covers spec scenario 2: queue-wide Last
// replay yields exactly one event per key, the most recent by sequence.
func TestReplayQueueLastOnePerKey(t *testing.T) {
	log := newTestLog(t)
	for i := uint64(1); i <= 5; i++ {
		put(t, log, "q", "a", i, "v", nil)
	}
	for i := uint64(1); i <= 3; i++ {
		put(t, log, "q", "b", i, "v", nil)
	}

	got, err := log.ReplayQueue("q", event.Last(), newEnvelope)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byKey := map[string]event.Event{}
	for _, ev := range got {
		byKey[ev.Key()] = ev
	}
	assert.Equal(t, uint64(5), byKey["a"].Sequence())
	assert.Equal(t, uint64(3), byKey["b"].Sequence())
}

func TestReplayQueueByIDFiltersAcrossKeys(t *testing.T) {
	log := newTestLog(t)
	put(t, log, "q", "a", 1, "v", nil)
	put(t, log, "q", "a", 2, "v", nil)
	put(t, log, "q", "b", 1, "v", nil)

	got, err := log.ReplayQueue("q", event.ByID(2), newEnvelope)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Key())
	assert.Equal(t, uint64(2), got[0].Sequence())
}

// TestDeleteKeyRemovesOnlyThatKey covers spec invariant 6 and scenario 5.
func TestDeleteKeyRemovesOnlyThatKey(t *testing.T) {
	log := newTestLog(t)
	put(t, log, "q", "a", 1, "v", nil)
	put(t, log, "q", "b", 1, "v", nil)
	put(t, log, "q", "b", 2, "v", nil)

	require.NoError(t, log.DeleteKey("q", "a"))

	gotA, err := log.ReplayKey("q", "a", event.First(), newEnvelope)
	require.NoError(t, err)
	assert.Empty(t, gotA)

	gotB, err := log.ReplayKey("q", "b", event.First(), newEnvelope)
	require.NoError(t, err)
	assert.Len(t, gotB, 2)
}

func TestSequencesStrictlyIncreasingInStorageOrder(t *testing.T) {
	log := newTestLog(t)
	for i := uint64(1); i <= 4; i++ {
		put(t, log, "q", "k", i, "v", nil)
	}

	got, err := log.ReplayKey("q", "k", event.First(), newEnvelope)
	require.NoError(t, err)

	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Sequence(), got[i-1].Sequence())
	}
}
