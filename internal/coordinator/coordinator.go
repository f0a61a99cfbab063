// Package coordinator serializes pump intents. Schedules, threshold
// responses and the manual API all submit through one queue; a single
// goroutine applies intents in arrival order so the actuator never sees
// two producers interleaved. The most recently applied intent wins.
package coordinator

import (
	"log"
	"sync"
	"time"

	"github.com/sweeney/garden-pump/internal/intent"
	"github.com/sweeney/garden-pump/internal/notify"
	"github.com/sweeney/garden-pump/internal/pump"
)

// queueSize bounds the intent backlog. Producers tick every 30s so the
// queue only grows when the consumer stalls on a slow serial write.
const queueSize = 16

// Coordinator owns the intent queue and the consumer goroutine.
type Coordinator struct {
	core *pump.Controller
	pub  notify.Publisher
	now  func() time.Time

	intents chan intent.Intent

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Coordinator driving the given controller. pub may be
// nil when event delivery is not configured.
func New(core *pump.Controller, pub notify.Publisher) *Coordinator {
	return &Coordinator{
		core:    core,
		pub:     pub,
		now:     time.Now,
		intents: make(chan intent.Intent, queueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Submit enqueues an intent. Blocks if the queue is full; intents are
// never dropped. Returns false if the coordinator has been stopped.
func (c *Coordinator) Submit(in intent.Intent) bool {
	select {
	case <-c.stop:
		return false
	default:
	}
	select {
	case <-c.stop:
		return false
	case c.intents <- in:
		return true
	}
}

// Run consumes intents until Stop is called. Intended to be run as a
// goroutine; it is the only caller of the controller's mutating
// operations once started.
func (c *Coordinator) Run() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			// Drain anything already queued so a shutdown-time off
			// intent is not lost.
			for {
				select {
				case in := <-c.intents:
					c.apply(in)
				default:
					return
				}
			}
		case in := <-c.intents:
			c.apply(in)
		}
	}
}

// Stop shuts down the consumer and waits for it to drain.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

// Status reports the controller's current state.
func (c *Coordinator) Status() pump.State {
	return c.core.Status()
}

// apply executes one intent against the controller. Intents that match
// the current state exactly are skipped: no command is sent and no
// auto-off deadline is re-armed.
func (c *Coordinator) apply(in intent.Intent) {
	st := c.core.Status()

	switch in.Action {
	case intent.ActionOn:
		if st.On && st.Source == in.Source {
			return
		}
		next, err := c.core.TurnOn(in.Duration, in.Source)
		if err != nil {
			log.Printf("coordinator: turn on (%s): %v", in.Source, err)
		}
		if next.On && !st.On || next.Source != st.Source {
			c.notifyChange(in, next)
		}
	case intent.ActionOff:
		if !st.On {
			return
		}
		if _, err := c.core.TurnOff(in.Source); err != nil {
			log.Printf("coordinator: turn off (%s): %v", in.Source, err)
		}
		c.notifyChange(in, pump.State{})
	case intent.ActionToggle:
		if _, err := c.core.Toggle(); err != nil {
			log.Printf("coordinator: toggle: %v", err)
		}
	default:
		log.Printf("coordinator: unknown action %q ignored", in.Action)
	}
}

// notifyChange publishes an event for schedule and auto-response
// transitions. Manual commands are visible through the API and are not
// broadcast.
func (c *Coordinator) notifyChange(in intent.Intent, next pump.State) {
	if c.pub == nil {
		return
	}

	var category string
	switch in.Source.Kind {
	case intent.KindScheduled:
		category = "schedule"
	case intent.KindAutoResponse:
		category = "auto_response"
	default:
		return
	}

	action := "pump_off"
	if in.Action == intent.ActionOn {
		action = "pump_on"
	}

	event := intent.Event{
		Timestamp: c.now(),
		Category:  category,
		Action:    action,
		Reason:    in.Source.Detail,
		Duration:  in.Duration.Seconds(),
	}
	if err := c.pub.Publish(event); err != nil {
		log.Printf("coordinator: publish event: %v", err)
	}
}
