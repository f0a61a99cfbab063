//go:build !linux

package device

import "errors"

// RelayLink is not available on non-Linux platforms.
type RelayLink struct{}

// NewRelayLink returns an error on non-Linux platforms.
func NewRelayLink(pin int, activeLow bool) (*RelayLink, error) {
	return nil, errors.New("device: gpio relay not supported on this platform (requires Linux)")
}

// Send is not implemented on non-Linux platforms.
func (r *RelayLink) Send(on bool) (Ack, error) {
	return Ack{Simulated: true}, nil
}

// IsLive is not implemented on non-Linux platforms.
func (r *RelayLink) IsLive() bool { return false }

// Status is not implemented on non-Linux platforms.
func (r *RelayLink) Status() LinkStatus {
	return LinkStatus{Mode: ModeSimulated}
}

// Close is not implemented on non-Linux platforms.
func (r *RelayLink) Close() error { return nil }
