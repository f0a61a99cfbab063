package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/garden-pump/internal/intent"
)

func event(reason string) intent.Event {
	return intent.Event{Timestamp: time.Now(), Category: "schedule", Action: "pump_on", Reason: reason}
}

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(10)
	if got := rb.drainAll(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestRingBufferPushAndDrain(t *testing.T) {
	rb := newRingBuffer(10)
	for i := 0; i < 5; i++ {
		rb.push(event(string(rune('a' + i))))
	}

	got := rb.drainAll()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := 0; i < 5; i++ {
		if got[i].Reason != string(rune('a'+i)) {
			t.Errorf("item %d: got reason %q", i, got[i].Reason)
		}
	}

	if got := rb.drainAll(); got != nil {
		t.Errorf("expected nil from second drain, got %d items", len(got))
	}
}

func TestRingBufferOverflowKeepsNewest(t *testing.T) {
	rb := newRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.push(event(string(rune('a' + i))))
	}

	got := rb.drainAll()
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	// Oldest two dropped: c, d, e remain.
	for i, want := range []string{"c", "d", "e"} {
		if got[i].Reason != want {
			t.Errorf("item %d: got %q, want %q", i, got[i].Reason, want)
		}
	}
}

func TestBufferedPublisherPassesThrough(t *testing.T) {
	inner := NewFakePublisher()
	bp := NewBufferedPublisher(inner, 8)

	if err := bp.Publish(event("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(inner.Events) != 1 {
		t.Fatalf("expected 1 delivered event, got %d", len(inner.Events))
	}
	if bp.Pending() != 0 {
		t.Errorf("expected empty backlog, got %d", bp.Pending())
	}
}

func TestBufferedPublisherReplaysBacklogInOrder(t *testing.T) {
	inner := NewFakePublisher()
	bp := NewBufferedPublisher(inner, 8)

	inner.PublishError = errors.New("broker down")
	bp.Publish(event("a"))
	bp.Publish(event("b"))
	if bp.Pending() != 2 {
		t.Fatalf("expected 2 buffered, got %d", bp.Pending())
	}
	if len(inner.Events) != 0 {
		t.Fatalf("expected nothing delivered while down, got %d", len(inner.Events))
	}

	// Broker back: the next publish flushes the backlog first.
	inner.PublishError = nil
	bp.Publish(event("c"))

	if len(inner.Events) != 3 {
		t.Fatalf("expected 3 delivered events, got %d", len(inner.Events))
	}
	for i, want := range []string{"a", "b", "c"} {
		if inner.Events[i].Reason != want {
			t.Errorf("event %d: got %q, want %q", i, inner.Events[i].Reason, want)
		}
	}
	if bp.Pending() != 0 {
		t.Errorf("expected empty backlog after replay, got %d", bp.Pending())
	}
}

func TestBufferedPublisherKeepsBacklogWhenReplayFails(t *testing.T) {
	inner := NewFakePublisher()
	bp := NewBufferedPublisher(inner, 8)

	inner.PublishError = errors.New("broker down")
	bp.Publish(event("a"))
	bp.Publish(event("b"))
	bp.Publish(event("c"))

	if bp.Pending() != 3 {
		t.Fatalf("expected 3 buffered, got %d", bp.Pending())
	}

	inner.PublishError = nil
	bp.Publish(event("d"))
	if len(inner.Events) != 4 {
		t.Fatalf("expected 4 delivered events, got %d", len(inner.Events))
	}
}
