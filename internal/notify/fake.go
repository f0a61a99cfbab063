package notify

import (
	"github.com/sweeney/garden-pump/internal/intent"
)

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	// Events contains all pump events that were published.
	Events []intent.Event

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all lifecycle events that were published.
	SystemEvents []SystemEvent

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the pump event.
func (f *FakePublisher) Publish(event intent.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	f.Events = append(f.Events, event)

	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Payloads = append(f.Payloads, payload)

	return nil
}

// PublishSystem records the lifecycle event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.SystemEvents = append(f.SystemEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}
