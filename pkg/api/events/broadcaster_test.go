package events

import (
	"testing"
	"time"
)

func receive(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast event")
		return Event{}
	}
}

func TestBroadcaster_SubscribeBroadcastUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", b.Subscribers())
	}

	b.Broadcast(Event{Type: TypeSummaryUpdated, UserID: "u1"})

	event := receive(t, ch)
	if event.Type != TypeSummaryUpdated {
		t.Fatalf("type = %q, want %s", event.Type, TypeSummaryUpdated)
	}
	if event.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}

	b.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	b.Unsubscribe(ch)
}

func TestBroadcaster_MemoryHelpers(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(4)

	b.ChatFinalized("u1", "c1", true)
	b.SummaryUpdated("u1", 3)
	b.MemoryDistilled("u1", 2, 1, 0)
	b.JobCompleted("compress-memory", "schedule", "ok", nil)

	want := []string{TypeChatFinalized, TypeSummaryUpdated, TypeMemoryDistilled, TypeJobCompleted}
	for i, typ := range want {
		event := receive(t, ch)
		if event.Type != typ {
			t.Fatalf("event %d type = %q, want %q", i, event.Type, typ)
		}
		if typ != TypeJobCompleted && event.UserID != "u1" {
			t.Errorf("event %d user = %q, want u1", i, event.UserID)
		}
	}

	b.MemoryDistilled("u2", 1, 0, 0)
	payload := receive(t, ch).Payload.(map[string]any)
	if payload["tier1"] != 1 {
		t.Errorf("tier1 = %v, want 1", payload["tier1"])
	}
}

func TestBroadcaster_DropsOnOverflow(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)

	done := make(chan struct{})
	go func() {
		b.SummaryUpdated("u1", 1)
		b.SummaryUpdated("u1", 2)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full subscriber")
	}

	event := receive(t, ch)
	if v := event.Payload.(map[string]any)["version"]; v != 1 {
		t.Fatalf("version = %v, want 1", v)
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	if b.Subscribers() != 0 {
		t.Fatal("subscribers left after close")
	}
}
