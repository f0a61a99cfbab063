package device

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// realTransport is the production transport backed by go.bug.st/serial.
type realTransport struct{}

func (realTransport) list() ([]portInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}
	ports := make([]portInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, portInfo{
			name:    d.Name,
			isUSB:   d.IsUSB,
			vid:     d.VID,
			product: d.Product,
		})
	}
	return ports, nil
}

func (realTransport) open(name string, baud int) (wire, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		if isBusyError(err) {
			return nil, fmt.Errorf("%w: %v", errBusy, err)
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	// Give the microcontroller time to come out of the reset that
	// opening the port triggers on most USB bridges.
	time.Sleep(2 * time.Second)
	port.ResetInputBuffer()
	port.ResetOutputBuffer()

	return &serialWire{port: port}, nil
}

// isBusyError reports whether opening the port failed because another
// process holds it (a serial monitor left open, a previous session).
func isBusyError(err error) bool {
	var pe *serial.PortError
	if errors.As(err, &pe) {
		return pe.Code() == serial.PortBusy || pe.Code() == serial.PermissionDenied
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "busy") || strings.Contains(msg, "denied")
}

// serialWire adapts a serial.Port to the wire interface with
// line-oriented, deadline-bounded reads.
type serialWire struct {
	port serial.Port
	buf  []byte
}

func (w *serialWire) writeLine(s string) error {
	if _, err := w.port.Write([]byte(s + "\n")); err != nil {
		return fmt.Errorf("write %q: %w", s, err)
	}
	return w.port.Drain()
}

func (w *serialWire) readLine(window time.Duration) (string, error) {
	deadline := time.Now().Add(window)
	for {
		if i := indexNewline(w.buf); i >= 0 {
			line := strings.TrimRight(string(w.buf[:i]), "\r")
			w.buf = w.buf[i+1:]
			return line, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", errNoResponse
		}
		if err := w.port.SetReadTimeout(remaining); err != nil {
			return "", err
		}

		chunk := make([]byte, 64)
		n, err := w.port.Read(chunk)
		if err != nil {
			return "", err
		}
		if n == 0 {
			// Read timeout elapsed with nothing buffered.
			return "", errNoResponse
		}
		w.buf = append(w.buf, chunk[:n]...)
	}
}

func (w *serialWire) close() error {
	return w.port.Close()
}

func indexNewline(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return -1
}
