package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeAccessors(t *testing.T) {
	e := NewEnvelope("alpha", []byte("payload"))

	assert.Equal(t, "alpha", e.Key())
	assert.Equal(t, uint64(0), e.Sequence())
	assert.False(t, e.Terminal())

	e.SetSequence(7)
	e.SetTerminal(true)

	assert.Equal(t, uint64(7), e.Sequence())
	assert.True(t, e.Terminal())
}

func TestEnvelopeCloneIsIndependent(t *testing.T) {
	orig := NewEnvelope("alpha", []byte("payload"))
	orig.SetSequence(3)

	clone := orig.Clone()
	clone.Body[0] = 'X'
	clone.SetTerminal(true)

	assert.NotEqual(t, orig.Body[0], clone.Body[0])
	assert.False(t, orig.Terminal())
	assert.True(t, clone.Terminal())
	assert.Equal(t, orig.Key(), clone.Key())
	assert.Equal(t, orig.Sequence(), clone.Sequence())
}

func TestEnvelopeCloneEventReturnsEvent(t *testing.T) {
	orig := NewEnvelope("alpha", []byte("payload"))
	var c Cloner = orig

	cloned := c.CloneEvent()
	require.NotNil(t, cloned)
	assert.Equal(t, orig.Key(), cloned.Key())
}

func TestReplayModeConstructors(t *testing.T) {
	id := ByID(5)
	assert.Equal(t, ReplayID, id.Kind)
	assert.Equal(t, uint64(5), id.Since)

	assert.Equal(t, ReplayFirst, First().Kind)
	assert.Equal(t, ReplayLast, Last().Kind)
}

func TestSubscriptionNilIsSafe(t *testing.T) {
	var s *Subscription

	assert.Nil(t, s.Stream())
	n, ok := s.Preloaded()
	assert.Equal(t, 0, n)
	assert.False(t, ok)

	require.NotPanics(t, func() { s.Close() })
}

func TestSubscriptionClosePropagatesCancel(t *testing.T) {
	called := false
	s := NewSubscription(make(chan BroadcastMessage), 3, true, func() { called = true })

	n, ok := s.Preloaded()
	assert.Equal(t, 3, n)
	assert.True(t, ok)

	s.Close()
	assert.True(t, called)

	// Closing twice must not panic or double-invoke in a way that panics.
	require.NotPanics(t, func() { s.Close() })
}
