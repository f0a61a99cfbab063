package device

import (
	"sync"
	"time"
)

// FakeLink is a test double implementing Link. It records every command
// and returns scripted acknowledgements.
type FakeLink struct {
	mu sync.Mutex

	// Commands holds every on/off value passed to Send, in order.
	Commands []bool

	// Ack is returned by Send when Script is exhausted or empty.
	Ack Ack
	// Err is returned by Send when Script is exhausted or empty.
	Err error

	// Script, if non-empty, supplies per-call results consumed in order.
	Script []FakeResult

	// Live is reported by IsLive.
	Live bool

	// Closed tracks whether Close was called.
	Closed bool

	index int
}

// FakeResult is one scripted Send outcome.
type FakeResult struct {
	Ack Ack
	Err error
}

// NewFakeLink creates a live fake that confirms every command.
func NewFakeLink() *FakeLink {
	return &FakeLink{Ack: Ack{Confirmed: true}, Live: true}
}

// Send records the command and returns the next scripted result.
func (f *FakeLink) Send(on bool) (Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = append(f.Commands, on)
	if f.index < len(f.Script) {
		r := f.Script[f.index]
		f.index++
		return r.Ack, r.Err
	}
	return f.Ack, f.Err
}

// SendCount returns how many commands were issued.
func (f *FakeLink) SendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Commands)
}

// LastCommand returns the most recent command, or false if none.
func (f *FakeLink) LastCommand() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Commands) == 0 {
		return false
	}
	return f.Commands[len(f.Commands)-1]
}

// IsLive reports the scripted liveness.
func (f *FakeLink) IsLive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Live
}

// Status reports a connected or simulated snapshot per Live.
func (f *FakeLink) Status() LinkStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	mode := ModeSimulated
	if f.Live {
		mode = ModeConnected
	}
	return LinkStatus{Mode: mode, Target: "fake", LastChecked: time.Now()}
}

// Close marks the link closed.
func (f *FakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
