package device

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeWire is a scripted serial connection.
type fakeWire struct {
	mu        sync.Mutex
	writes    []string
	pending   []string
	respond   func(cmd string) []string
	writeErrs []error // consumed one per writeLine call
	readErr   error   // sticky; returned by every readLine
}

func (w *fakeWire) writeLine(s string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.writeErrs) > 0 {
		err := w.writeErrs[0]
		w.writeErrs = w.writeErrs[1:]
		if err != nil {
			return err
		}
	}
	w.writes = append(w.writes, s)
	if w.respond != nil {
		w.pending = append(w.pending, w.respond(s)...)
	}
	return nil
}

func (w *fakeWire) readLine(window time.Duration) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readErr != nil {
		return "", w.readErr
	}
	if len(w.pending) == 0 {
		return "", errNoResponse
	}
	line := w.pending[0]
	w.pending = w.pending[1:]
	return line, nil
}

func (w *fakeWire) close() error { return nil }

func (w *fakeWire) sentCommands() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.writes))
	copy(out, w.writes)
	return out
}

// ackEverything is the respond func of a healthy device.
func ackEverything(cmd string) []string {
	switch cmd {
	case TokenOn:
		return []string{AckOn}
	case TokenOff, TokenStatus:
		return []string{AckOff}
	}
	return nil
}

// fakeTransport hands out scripted wires and a mutable port list.
type fakeTransport struct {
	mu      sync.Mutex
	ports   []portInfo
	wires   []*fakeWire // consumed per open; the last one repeats
	openErr error
	opens   int
}

func (t *fakeTransport) list() ([]portInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]portInfo, len(t.ports))
	copy(out, t.ports)
	return out, nil
}

func (t *fakeTransport) open(name string, baud int) (wire, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opens++
	if t.openErr != nil {
		return nil, t.openErr
	}
	if len(t.wires) == 0 {
		return nil, errors.New("no wire scripted")
	}
	w := t.wires[0]
	if len(t.wires) > 1 {
		t.wires = t.wires[1:]
	}
	return w, nil
}

func (t *fakeTransport) setPorts(ports []portInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ports = ports
}

var arduinoPort = portInfo{name: "/dev/ttyUSB0", isUSB: true, vid: "2341", product: "Arduino Uno"}

func testConfig() SerialConfig {
	return SerialConfig{
		Baud:          9600,
		ReadWindow:    50 * time.Millisecond,
		ProbeInterval: time.Hour, // probes are driven manually in tests
		RetryBackoff:  time.Millisecond,
	}
}

func newTestLink(t *testing.T, cfg SerialConfig, tr transport) *SerialLink {
	t.Helper()
	l := newSerialLink(cfg, tr, time.Now)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestStartsSimulatedWithoutHardware(t *testing.T) {
	tr := &fakeTransport{}
	l := newTestLink(t, testConfig(), tr)

	if got := l.Status().Mode; got != ModeSimulated {
		t.Fatalf("mode: got %s, want %s", got, ModeSimulated)
	}
	if l.IsLive() {
		t.Error("IsLive should be false without hardware")
	}

	ack, err := l.Send(true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !ack.Simulated {
		t.Error("expected simulated ack")
	}
}

func TestAutodetectAndConnect(t *testing.T) {
	w := &fakeWire{respond: ackEverything}
	tr := &fakeTransport{ports: []portInfo{
		{name: "/dev/ttyS0", isUSB: false},
		arduinoPort,
	}, wires: []*fakeWire{w}}
	l := newTestLink(t, testConfig(), tr)

	if got := l.Status().Mode; got != ModeConnected {
		t.Fatalf("mode: got %s, want %s", got, ModeConnected)
	}
	if got := l.Status().Target; got != arduinoPort.name {
		t.Errorf("target: got %s, want %s", got, arduinoPort.name)
	}

	// Connect handshakes with STATUS and parks the relay off.
	cmds := w.sentCommands()
	if len(cmds) < 2 || cmds[0] != TokenStatus || cmds[1] != TokenOff {
		t.Errorf("startup commands: got %v, want [STATUS OFF ...]", cmds)
	}

	ack, err := l.Send(true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !ack.Confirmed {
		t.Errorf("expected confirmed ack, got %+v", ack)
	}
	cmds = w.sentCommands()
	if cmds[len(cmds)-1] != TokenOn {
		t.Errorf("last command: got %s, want ON", cmds[len(cmds)-1])
	}
}

func TestBusyEndpointStartsDisconnected(t *testing.T) {
	tr := &fakeTransport{
		ports:   []portInfo{arduinoPort},
		openErr: fmt.Errorf("%w: another process holds the port", errBusy),
	}
	l := newTestLink(t, testConfig(), tr)

	if got := l.Status().Mode; got != ModeDisconnected {
		t.Fatalf("mode: got %s, want %s", got, ModeDisconnected)
	}
	// A command while disconnected still succeeds logically.
	ack, err := l.Send(true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !ack.Simulated {
		t.Error("expected simulated ack while disconnected")
	}
}

func TestDegradeAndRecover(t *testing.T) {
	w := &fakeWire{respond: ackEverything}
	tr := &fakeTransport{ports: []portInfo{arduinoPort}, wires: []*fakeWire{w}}
	l := newTestLink(t, testConfig(), tr)

	if !l.IsLive() {
		t.Fatal("expected live link after construction")
	}

	// Endpoint vanishes: next probe must fall back to simulated
	// without operator intervention.
	tr.setPorts(nil)
	l.probe()
	if got := l.Status().Mode; got != ModeSimulated {
		t.Fatalf("mode after vanish: got %s, want %s", got, ModeSimulated)
	}
	ack, err := l.Send(true)
	if err != nil || !ack.Simulated {
		t.Fatalf("Send after vanish: ack=%+v err=%v", ack, err)
	}

	// Endpoint reappears: a probe reconnects.
	tr.setPorts([]portInfo{arduinoPort})
	l.probe()
	if got := l.Status().Mode; got != ModeConnected {
		t.Fatalf("mode after reappear: got %s, want %s", got, ModeConnected)
	}
	if !l.IsLive() {
		t.Error("IsLive should be true after recovery")
	}
}

func TestSendRetriesBusyThenSucceeds(t *testing.T) {
	w := &fakeWire{
		respond:   ackEverything,
		writeErrs: nil,
	}
	tr := &fakeTransport{ports: []portInfo{arduinoPort}, wires: []*fakeWire{w}}
	l := newTestLink(t, testConfig(), tr)

	// Two transient busy failures, then the write goes through.
	w.mu.Lock()
	w.writeErrs = []error{errBusy, errBusy, nil}
	w.mu.Unlock()

	ack, err := l.Send(true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !ack.Confirmed {
		t.Errorf("expected confirmed ack after retries, got %+v", ack)
	}
}

func TestSendDegradesAfterRetryBudget(t *testing.T) {
	w := &fakeWire{respond: ackEverything}
	tr := &fakeTransport{ports: []portInfo{arduinoPort}, wires: []*fakeWire{w}}
	l := newTestLink(t, testConfig(), tr)

	w.mu.Lock()
	w.writeErrs = []error{errBusy, errBusy, errBusy, errBusy}
	w.mu.Unlock()

	ack, err := l.Send(true)
	if err != nil {
		t.Fatalf("Send should not fail the logical command: %v", err)
	}
	if !ack.Simulated {
		t.Errorf("expected simulated ack after retry budget, got %+v", ack)
	}
	if got := l.Status().Mode; got != ModeDisconnected {
		t.Errorf("mode: got %s, want %s", got, ModeDisconnected)
	}
}

func TestSendSurfacesExplicitRejection(t *testing.T) {
	w := &fakeWire{respond: func(cmd string) []string {
		if cmd == TokenOn {
			return []string{"ERROR:overcurrent"}
		}
		return ackEverything(cmd)
	}}
	tr := &fakeTransport{ports: []portInfo{arduinoPort}, wires: []*fakeWire{w}}
	l := newTestLink(t, testConfig(), tr)

	_, err := l.Send(true)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	// Rejection does not tear down the link.
	if got := l.Status().Mode; got != ModeConnected {
		t.Errorf("mode: got %s, want %s", got, ModeConnected)
	}
}

func TestSendNoResponseIsSoftSuccess(t *testing.T) {
	w := &fakeWire{respond: func(cmd string) []string {
		if cmd == TokenOn {
			return nil // device stays silent
		}
		return ackEverything(cmd)
	}}
	tr := &fakeTransport{ports: []portInfo{arduinoPort}, wires: []*fakeWire{w}}
	l := newTestLink(t, testConfig(), tr)

	ack, err := l.Send(true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ack.Confirmed || ack.Simulated {
		t.Errorf("expected soft success (unconfirmed, not simulated), got %+v", ack)
	}
}

func TestExchangeSkipsDeviceChatter(t *testing.T) {
	w := &fakeWire{respond: func(cmd string) []string {
		if cmd == TokenOn {
			return []string{"booting...", "relay armed", AckOn}
		}
		return ackEverything(cmd)
	}}
	tr := &fakeTransport{ports: []portInfo{arduinoPort}, wires: []*fakeWire{w}}
	l := newTestLink(t, testConfig(), tr)

	ack, err := l.Send(true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !ack.Confirmed {
		t.Errorf("expected confirmed ack, got %+v", ack)
	}
	if ack.Raw != AckOn {
		t.Errorf("raw: got %q, want %q", ack.Raw, AckOn)
	}
}

func TestExplicitPortSkipsAutodetection(t *testing.T) {
	w := &fakeWire{respond: ackEverything}
	tr := &fakeTransport{
		ports: []portInfo{{name: "COM5", isUSB: true, vid: "FFFF", product: "unknown"}},
		wires: []*fakeWire{w},
	}
	cfg := testConfig()
	cfg.Port = "COM5"
	l := newTestLink(t, cfg, tr)

	if got := l.Status().Target; got != "COM5" {
		t.Errorf("target: got %s, want COM5", got)
	}
	if got := l.Status().Mode; got != ModeConnected {
		t.Errorf("mode: got %s, want %s", got, ModeConnected)
	}
}
