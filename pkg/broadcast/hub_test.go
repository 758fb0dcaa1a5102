package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/keyqueue/pkg/event"
)

func recv(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishReachesQueueWideAndKeySubscribers(t *testing.T) {
	h := NewHub(4)

	wide, cancelWide := h.SubscribeQueue()
	defer cancelWide()
	keyed, cancelKey := h.SubscribeKey("a")
	defer cancelKey()

	ev := event.NewEnvelope("a", []byte("v"))
	h.Publish(ev)

	assert.Same(t, event.Event(ev), recv(t, wide))
	assert.Same(t, event.Event(ev), recv(t, keyed))
}

func TestKeySubscriberDoesNotReceiveOtherKeys(t *testing.T) {
	h := NewHub(4)

	keyed, cancel := h.SubscribeKey("a")
	defer cancel()

	h.Publish(event.NewEnvelope("b", []byte("v")))

	select {
	case <-keyed:
		t.Fatal("received an event for a different key")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeOnlySeesMessagesAfterSubscription(t *testing.T) {
	h := NewHub(4)

	h.Publish(event.NewEnvelope("a", []byte("before")))

	keyed, cancel := h.SubscribeKey("a")
	defer cancel()

	h.Publish(event.NewEnvelope("a", []byte("after")))

	got := recv(t, keyed).(*event.Envelope)
	assert.Equal(t, []byte("after"), got.Body)
}

func TestCancelUnsubscribesAndClosesChannel(t *testing.T) {
	h := NewHub(4)

	keyed, cancel := h.SubscribeKey("a")
	cancel()

	_, ok := <-keyed
	assert.False(t, ok, "channel should be closed after cancel")

	// Idempotent.
	assert.NotPanics(t, func() { cancel() })
}

func TestPublishOverflowDropsOldest(t *testing.T) {
	h := NewHub(2)

	keyed, cancel := h.SubscribeKey("a")
	defer cancel()

	h.Publish(event.NewEnvelope("a", []byte("1")))
	h.Publish(event.NewEnvelope("a", []byte("2")))
	h.Publish(event.NewEnvelope("a", []byte("3"))) // buffer full, drops "1"

	first := recv(t, keyed).(*event.Envelope)
	second := recv(t, keyed).(*event.Envelope)

	assert.Equal(t, []byte("2"), first.Body)
	assert.Equal(t, []byte("3"), second.Body)
}

func TestDropKeyRemovesHubEntry(t *testing.T) {
	h := NewHub(4)

	keyed, cancel := h.SubscribeKey("a")
	defer cancel()

	h.DropKey("a")
	h.Publish(event.NewEnvelope("a", []byte("v")))

	select {
	case <-keyed:
		t.Fatal("subscriber created before DropKey should not see a post-drop publish")
	case <-time.After(50 * time.Millisecond):
	}

	// A fresh subscribe after DropKey lazily recreates the set.
	fresh, cancelFresh := h.SubscribeKey("a")
	defer cancelFresh()
	h.Publish(event.NewEnvelope("a", []byte("v2")))
	require.NotNil(t, recv(t, fresh))
}

func TestNewHubDefaultsCapacity(t *testing.T) {
	h := NewHub(0)
	assert.Equal(t, DefaultCapacity, h.capacity)
}
