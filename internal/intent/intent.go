// Package intent defines the value types exchanged between command
// producers (schedules, threshold responses, the manual API) and the
// coordinator. This package has NO dependencies beyond the standard
// library so every other package can import it freely.
package intent

import (
	"fmt"
	"time"
)

// SourceKind identifies which producer requested an actuator change.
type SourceKind string

const (
	KindNone         SourceKind = "none"
	KindManual       SourceKind = "manual"
	KindScheduled    SourceKind = "scheduled"
	KindAutoResponse SourceKind = "auto_response"
)

// Source is the origin of an actuator activation. Detail carries the
// schedule id for KindScheduled and the trigger reason for
// KindAutoResponse; it is empty otherwise.
type Source struct {
	Kind   SourceKind
	Detail string
}

// None is the source of an actuator that nothing is driving.
func None() Source { return Source{Kind: KindNone} }

// Manual is the source for operator commands.
func Manual() Source { return Source{Kind: KindManual} }

// Scheduled is the source for a recurring schedule activation.
func Scheduled(id string) Source { return Source{Kind: KindScheduled, Detail: id} }

// AutoResponse is the source for a threshold-triggered activation.
func AutoResponse(reason string) Source { return Source{Kind: KindAutoResponse, Detail: reason} }

// String renders the source for logs.
func (s Source) String() string {
	if s.Detail == "" {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.Detail)
}

// Action is the requested actuator transition.
type Action string

const (
	ActionOn     Action = "on"
	ActionOff    Action = "off"
	ActionToggle Action = "toggle"
)

// Intent is a requested state change submitted to the coordinator.
// Duration > 0 arms an auto-off deadline; Duration == 0 means the
// actuator runs until something turns it off.
type Intent struct {
	Action   Action
	Source   Source
	Duration time.Duration
}

// Activate builds an on-intent.
func Activate(src Source, d time.Duration) Intent {
	return Intent{Action: ActionOn, Source: src, Duration: d}
}

// Deactivate builds an off-intent.
func Deactivate(src Source) Intent {
	return Intent{Action: ActionOff, Source: src}
}

// Event is the structured notification emitted whenever a schedule or
// auto-response changes actuator state. Delivery is someone else's
// problem; the core only produces these.
type Event struct {
	Timestamp time.Time
	Category  string  // e.g. "moisture_low", "schedule"
	Action    string  // e.g. "pump_on", "pump_off"
	Reason    string  // human-readable trigger description
	Duration  float64 // seconds; 0 when the action is not time-bounded
}
