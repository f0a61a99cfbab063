// Package notify delivers structured pump events to an MQTT broker for
// consumption by external notifiers (Telegram bridges, dashboards).
// The core emits events; how they reach a human is not its concern.
package notify

import (
	"encoding/json"
	"time"

	"github.com/sweeney/garden-pump/internal/intent"
)

// Topic is the MQTT topic for pump events.
const Topic = "garden/pump/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "garden/pump/system"

// Publisher publishes pump events.
type Publisher interface {
	// Publish sends an event to the broker. A failure must not crash
	// the process; the caller logs and moves on.
	Publish(event intent.Event) error

	// PublishSystem sends a lifecycle event (STARTUP, SHUTDOWN).
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// SystemEvent is a daemon lifecycle event.
type SystemEvent struct {
	Timestamp time.Time
	Event     string // "STARTUP", "SHUTDOWN"
	Reason    string // e.g. "SIGTERM"
}

// Payload is the wire shape of a pump event.
type Payload struct {
	Pump PumpPayload `json:"pump"`
}

// PumpPayload carries the event details.
type PumpPayload struct {
	Timestamp string  `json:"timestamp"`
	Category  string  `json:"category"`
	Action    string  `json:"action"`
	Reason    string  `json:"reason,omitempty"`
	Duration  float64 `json:"duration_seconds,omitempty"`
}

// FormatPayload creates the JSON payload for a pump event.
func FormatPayload(event intent.Event) ([]byte, error) {
	return json.Marshal(Payload{
		Pump: PumpPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Category:  event.Category,
			Action:    event.Action,
			Reason:    event.Reason,
			Duration:  event.Duration,
		},
	})
}

// SystemPayload is the wire shape of a lifecycle event.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner carries the lifecycle details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a lifecycle event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
