// Package device provides the transport link to the physical pump relay.
// The serial implementation talks to a microcontroller over a USB serial
// port. The GPIO implementation drives a relay pin directly on Linux.
// Both fall back to a simulated backend when hardware is absent, so a
// missing pump is a steady operating mode rather than an error.
package device

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Wire protocol tokens. Requests are newline-terminated; the far end
// answers with an acknowledgement token within the read window.
const (
	TokenOn     = "ON"
	TokenOff    = "OFF"
	TokenStatus = "STATUS"

	AckOn       = "PUMP:ON"
	AckOff      = "PUMP:OFF"
	errorPrefix = "ERROR:"
)

// Mode is the connection state of a link.
type Mode string

const (
	// ModeSimulated means no transport endpoint is usable; commands are
	// accepted and applied logically only.
	ModeSimulated Mode = "simulated"
	// ModeConnected means a live transport exists and answered the
	// last handshake.
	ModeConnected Mode = "connected"
	// ModeDisconnected means the endpoint exists but the link is down;
	// the prober keeps trying to reconnect.
	ModeDisconnected Mode = "disconnected"
)

// Ack reports what happened to a single command.
type Ack struct {
	// Confirmed is true when the device echoed a recognized
	// acknowledgement token. False with a nil error means the command
	// was sent but no confirmation arrived (soft success).
	Confirmed bool
	// Simulated is true when there was no live transport and the
	// command was applied logically only.
	Simulated bool
	// Raw is the last response line received, if any.
	Raw string
}

// LinkStatus is a snapshot of a link's connection state.
type LinkStatus struct {
	Mode        Mode
	Target      string // endpoint identifier, e.g. "/dev/ttyUSB0" or "gpiochip0:8"
	LastChecked time.Time
}

// Link sends on/off commands to the physical actuator.
type Link interface {
	// Send issues the logical command. It blocks for at most roughly
	// one read window plus the bounded retry budget. A transport
	// failure never fails the logical command; only an explicit
	// rejection by the device does.
	Send(on bool) (Ack, error)

	// IsLive reports whether a live transport exists. Non-blocking;
	// the value is maintained by the background prober.
	IsLive() bool

	// Status returns a snapshot of the connection state.
	Status() LinkStatus

	// Close stops the prober and releases the transport.
	Close() error
}

// ErrRejected is returned when the device explicitly refuses a command
// with an ERROR token. The logical state has still been updated by the
// caller; physical truth may diverge and that divergence is surfaced,
// not hidden.
var ErrRejected = errors.New("device rejected command")

// errBusy marks a transient transport error (port busy, access denied).
// Sends retry a bounded number of times before degrading the link.
var errBusy = errors.New("port busy")

// errNoResponse means the read window elapsed without any line from the
// device. The command may still have been applied.
var errNoResponse = errors.New("no response")

// rejectionError wraps ErrRejected with the reason the device gave.
func rejectionError(line string) error {
	reason := strings.TrimSpace(strings.TrimPrefix(line, errorPrefix))
	return fmt.Errorf("%w: %s", ErrRejected, reason)
}

// isAck reports whether a response line is a recognized acknowledgement.
func isAck(line string) bool {
	return strings.Contains(line, AckOn) || strings.Contains(line, AckOff)
}

// isRejection reports whether a response line is an explicit error token.
func isRejection(line string) bool {
	return strings.Contains(strings.ToUpper(line), errorPrefix)
}

func commandToken(on bool) string {
	if on {
		return TokenOn
	}
	return TokenOff
}
