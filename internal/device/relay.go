//go:build linux

package device

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RelayLink drives the pump relay directly through a GPIO line using
// the Linux GPIO character device. Most relay boards are active-low:
// driving the line low energizes the relay.
type RelayLink struct {
	mu        sync.Mutex
	chip      *gpiocdev.Chip
	line      *gpiocdev.Line
	pin       int
	activeLow bool
	opened    time.Time
}

// NewRelayLink requests the relay pin as an output, initialized to the
// off state so the pump never runs during startup.
func NewRelayLink(pin int, activeLow bool) (*RelayLink, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(levelFor(false, activeLow)))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}

	relayType := "active-high"
	if activeLow {
		relayType = "active-low"
	}
	log.Printf("device: relay on GPIO pin %d (%s), initial state off", pin, relayType)

	return &RelayLink{
		chip:      chip,
		line:      line,
		pin:       pin,
		activeLow: activeLow,
		opened:    time.Now(),
	}, nil
}

// Send sets the relay line. GPIO writes either work or the line is
// gone; there is no acknowledgement protocol, so success is confirmed.
func (r *RelayLink) Send(on bool) (Ack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.line == nil {
		return Ack{Simulated: true}, nil
	}
	if err := r.line.SetValue(levelFor(on, r.activeLow)); err != nil {
		log.Printf("device: relay write failed: %v", err)
		return Ack{Simulated: true}, nil
	}
	return Ack{Confirmed: true}, nil
}

// IsLive reports whether the GPIO line is held.
func (r *RelayLink) IsLive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.line != nil
}

// Status returns the connection snapshot for the relay line.
func (r *RelayLink) Status() LinkStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	mode := ModeConnected
	if r.line == nil {
		mode = ModeSimulated
	}
	return LinkStatus{
		Mode:        mode,
		Target:      fmt.Sprintf("gpiochip0:%d", r.pin),
		LastChecked: r.opened,
	}
}

// Close drives the relay off and releases the line.
func (r *RelayLink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.line == nil {
		return nil
	}
	r.line.SetValue(levelFor(false, r.activeLow))
	err := r.line.Close()
	r.line = nil
	if cerr := r.chip.Close(); err == nil {
		err = cerr
	}
	return err
}

// levelFor maps a logical pump state to the electrical line level.
func levelFor(on, activeLow bool) int {
	if on != activeLow {
		return 1
	}
	return 0
}
