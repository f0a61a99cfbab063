// Package pump owns the canonical on/off state of the water pump and
// the single outstanding auto-off deadline. It is the only package that
// talks to the device link. All mutations are serialized internally:
// the coordinator is the intended caller, but the deadline timer fires
// from its own goroutine and is treated as a concurrent writer.
package pump

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/garden-pump/internal/device"
	"github.com/sweeney/garden-pump/internal/intent"
)

// ErrInvalidDuration is returned for non-positive or negative durations.
// The existing state is left untouched.
var ErrInvalidDuration = errors.New("invalid duration")

// DefaultRunDuration is the initial default for time-bounded manual
// activations.
const DefaultRunDuration = 2 * time.Second

// State is a point-in-time snapshot of the pump. ActivatedAt and
// Deadline are zero when not applicable; Deadline is non-zero only
// while the pump is on and the activation is time-bounded.
type State struct {
	On          bool
	Source      intent.Source
	ActivatedAt time.Time
	Deadline    time.Time
	LastChange  time.Time
}

// Controller is the actuator core. Exactly one deadline timer is ever
// outstanding; arming a new one atomically cancels the previous one.
type Controller struct {
	link device.Link
	now  func() time.Time

	mu          sync.Mutex
	on          bool
	source      intent.Source
	activatedAt time.Time
	deadline    time.Time
	lastChange  time.Time

	timer *time.Timer
	gen   uint64 // bumped on every deadline cancel; stale timers check it

	defaultDuration time.Duration
}

// New creates a controller driving the given link, with the pump
// logically off.
func New(link device.Link) *Controller {
	return &Controller{
		link:            link,
		now:             time.Now,
		source:          intent.None(),
		defaultDuration: DefaultRunDuration,
	}
}

// TurnOn switches the pump on. A duration > 0 arms an auto-off deadline
// for that duration, superseding any pending deadline; duration == 0
// runs the pump until something turns it off. A transport error never
// prevents the logical transition: the returned state reflects the
// command and the error (if any) reports that physical confirmation is
// uncertain.
func (c *Controller) TurnOn(d time.Duration, src intent.Source) (State, error) {
	if d < 0 {
		return c.Status(), fmt.Errorf("%w: %v", ErrInvalidDuration, d)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelDeadlineLocked()

	ack, err := c.link.Send(true)
	now := c.now()
	c.on = true
	c.source = src
	c.activatedAt = now
	c.lastChange = now

	if d > 0 {
		c.deadline = now.Add(d)
		gen := c.gen
		c.timer = time.AfterFunc(d, func() { c.deadlineFired(gen) })
		log.Printf("pump: on (source=%s), auto-off in %v", src, d)
	} else {
		log.Printf("pump: on (source=%s), no deadline", src)
	}

	st := c.stateLocked()
	if err != nil {
		return st, fmt.Errorf("turn on: %w", err)
	}
	if ack.Simulated {
		log.Printf("pump: command applied logically only (no live transport)")
	}
	return st, nil
}

// TurnOff switches the pump off and cancels any pending deadline.
func (c *Controller) TurnOff(src intent.Source) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turnOffLocked(src)
}

func (c *Controller) turnOffLocked(src intent.Source) (State, error) {
	c.cancelDeadlineLocked()

	_, err := c.link.Send(false)
	now := c.now()
	c.on = false
	c.source = intent.None()
	c.activatedAt = time.Time{}
	c.lastChange = now
	log.Printf("pump: off (requested by %s)", src)

	st := c.stateLocked()
	if err != nil {
		return st, fmt.Errorf("turn off: %w", err)
	}
	return st, nil
}

// Toggle turns the pump off if it is on, otherwise on for the
// configured default duration, attributed to the manual source.
func (c *Controller) Toggle() (State, error) {
	c.mu.Lock()
	on := c.on
	d := c.defaultDuration
	c.mu.Unlock()

	if on {
		return c.TurnOff(intent.Manual())
	}
	return c.TurnOn(d, intent.Manual())
}

// Status returns a read-only snapshot.
func (c *Controller) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// SetDefaultDuration changes the default for Toggle and for manual
// activations that name no duration. Non-positive values are rejected
// and leave the existing default unchanged.
func (c *Controller) SetDefaultDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDuration, d)
	}
	c.mu.Lock()
	c.defaultDuration = d
	c.mu.Unlock()
	log.Printf("pump: default duration set to %v", d)
	return nil
}

// DefaultDuration returns the configured default run duration.
func (c *Controller) DefaultDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaultDuration
}

// cancelDeadlineLocked invalidates the pending deadline, if any. The
// generation bump guarantees a concurrently-firing timer becomes a
// no-op even if it has already passed Stop.
func (c *Controller) cancelDeadlineLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.deadline = time.Time{}
}

// deadlineFired is the auto-off path. It runs on the timer goroutine
// and must re-check the generation under the lock: a deadline that was
// superseded after this timer fired must never turn the pump off.
func (c *Controller) deadlineFired(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || !c.on {
		return
	}
	log.Printf("pump: deadline reached, turning off")
	src := c.source
	if _, err := c.turnOffLocked(src); err != nil {
		log.Printf("pump: auto-off transport error: %v", err)
	}
}

func (c *Controller) stateLocked() State {
	return State{
		On:          c.on,
		Source:      c.source,
		ActivatedAt: c.activatedAt,
		Deadline:    c.deadline,
		LastChange:  c.lastChange,
	}
}
