package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStatusChanged, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindStatusChanged {
			t.Errorf("got kind %q, want %q", evt.Kind, KindStatusChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conv.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStatusChanged})
	b.Publish(Event{Kind: KindMessagesUpdated})

	select {
	case evt := <-ch:
		if evt.Kind != KindMessagesUpdated {
			t.Errorf("got kind %q, want %q", evt.Kind, KindMessagesUpdated)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the sync event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conv.", 10)
	unsub()

	b.Publish(Event{Kind: KindConversationsUpdated})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conv.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: KindConversationsUpdated})
	// This one should be dropped (non-blocking).
	b.Publish(Event{Kind: KindMessagesUpdated})

	evt := <-ch
	if evt.Kind != KindConversationsUpdated {
		t.Errorf("got %q, want %q", evt.Kind, KindConversationsUpdated)
	}
}
