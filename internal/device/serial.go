package device

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

// portInfo describes one enumerated serial port.
type portInfo struct {
	name    string
	isUSB   bool
	vid     string
	product string
}

// transport abstracts the host serial layer so the connection state
// machine can be exercised in tests without hardware.
type transport interface {
	list() ([]portInfo, error)
	open(name string, baud int) (wire, error)
}

// wire is a single open serial connection.
type wire interface {
	writeLine(s string) error
	// readLine returns the next newline-terminated line, waiting at
	// most window. Returns errNoResponse when nothing arrives.
	readLine(window time.Duration) (string, error)
	close() error
}

// USB vendor IDs of common hobby microcontroller bridges, matched
// during port autodetection.
var usbVendorIDs = map[string]string{
	"2341": "Arduino",
	"2A03": "Arduino clone",
	"1A86": "CH340",
	"10C4": "CP210x",
	"0403": "FTDI",
}

// SerialConfig configures a SerialLink.
type SerialConfig struct {
	// Port is the explicit endpoint ("/dev/ttyUSB0", "COM5"). Empty
	// enables USB autodetection.
	Port string
	// Baud defaults to 9600.
	Baud int
	// ReadWindow bounds the wait for a response line. Defaults to 500ms.
	ReadWindow time.Duration
	// ProbeInterval is the liveness probe period. Defaults to 5s.
	ProbeInterval time.Duration
	// RetryBackoff is the fixed delay between send retries on a busy
	// port. Defaults to 200ms.
	RetryBackoff time.Duration
}

func (c *SerialConfig) applyDefaults() {
	if c.Baud == 0 {
		c.Baud = 9600
	}
	if c.ReadWindow == 0 {
		c.ReadWindow = 500 * time.Millisecond
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = 5 * time.Second
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
}

const sendAttempts = 3

// SerialLink drives the pump relay through a microcontroller on a
// serial port. A background prober maintains the three-state connection
// machine (simulated / disconnected / connected); command senders never
// wait on the prober.
type SerialLink struct {
	cfg SerialConfig
	tr  transport
	now func() time.Time

	mu          sync.Mutex
	mode        Mode
	target      string
	conn        wire
	lastChecked time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewSerialLink locates a transport endpoint and starts the liveness
// prober. When no endpoint is found the link starts in simulated mode;
// that is not an error.
func NewSerialLink(cfg SerialConfig) *SerialLink {
	return newSerialLink(cfg, realTransport{}, time.Now)
}

func newSerialLink(cfg SerialConfig, tr transport, now func() time.Time) *SerialLink {
	cfg.applyDefaults()
	l := &SerialLink{
		cfg:  cfg,
		tr:   tr,
		now:  now,
		mode: ModeSimulated,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	l.target = cfg.Port
	if l.target == "" {
		l.target = l.autodetect()
	}
	if l.target == "" {
		log.Printf("device: no serial endpoint found, starting in simulated mode")
	} else if l.connect(l.target) {
		log.Printf("device: connected to %s at %d baud", l.target, l.cfg.Baud)
	} else {
		log.Printf("device: endpoint %s not usable yet, prober will retry", l.target)
	}

	go l.probeLoop()
	return l
}

// autodetect enumerates serial ports and returns the first one that
// looks like a known USB bridge.
func (l *SerialLink) autodetect() string {
	ports, err := l.tr.list()
	if err != nil {
		log.Printf("device: port enumeration failed: %v", err)
		return ""
	}
	for _, p := range ports {
		if !p.isUSB {
			continue
		}
		if name, ok := usbVendorIDs[strings.ToUpper(p.vid)]; ok {
			log.Printf("device: found %s bridge at %s (%s)", name, p.name, p.product)
			return p.name
		}
	}
	for _, p := range ports {
		log.Printf("device: ignoring port %s (%s)", p.name, p.product)
	}
	return ""
}

// connect opens the endpoint, handshakes with STATUS, and on success
// installs the connection and forces the relay off. Returns false and
// leaves the link in disconnected mode when the endpoint exists but
// cannot be used, or simulated mode when it is gone entirely.
func (l *SerialLink) connect(target string) bool {
	conn, err := l.tr.open(target, l.cfg.Baud)
	if err != nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.lastChecked = l.now()
		if errors.Is(err, errBusy) || l.portPresent(target) {
			l.mode = ModeDisconnected
		} else {
			l.mode = ModeSimulated
		}
		return false
	}

	// Handshake: the device must acknowledge STATUS within the read
	// window before we trust the link.
	if err := conn.writeLine(TokenStatus); err != nil {
		conn.close()
		l.setMode(ModeDisconnected)
		return false
	}
	if _, err := conn.readLine(l.cfg.ReadWindow); err != nil {
		conn.close()
		l.setMode(ModeDisconnected)
		return false
	}

	// Known-safe starting point: relay off.
	conn.writeLine(TokenOff)
	conn.readLine(l.cfg.ReadWindow)

	l.mu.Lock()
	if l.conn != nil {
		l.conn.close()
	}
	l.conn = conn
	l.mode = ModeConnected
	l.target = target
	l.lastChecked = l.now()
	l.mu.Unlock()
	return true
}

func (l *SerialLink) setMode(m Mode) {
	l.mu.Lock()
	l.mode = m
	l.lastChecked = l.now()
	l.mu.Unlock()
}

// portPresent reports whether target is currently enumerated.
// Caller may hold l.mu; the transport is never locked.
func (l *SerialLink) portPresent(target string) bool {
	ports, err := l.tr.list()
	if err != nil {
		return false
	}
	for _, p := range ports {
		if p.name == target {
			return true
		}
	}
	return false
}

func (l *SerialLink) probeLoop() {
	defer close(l.done)
	ticker := time.NewTicker(l.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.probe()
		}
	}
}

// probe runs one liveness check. Expensive work (enumeration, open,
// handshake) happens without holding the mutex so senders never block
// on the prober.
func (l *SerialLink) probe() {
	l.mu.Lock()
	mode, target := l.mode, l.target
	l.lastChecked = l.now()
	l.mu.Unlock()

	switch mode {
	case ModeConnected:
		if !l.portPresent(target) {
			log.Printf("device: endpoint %s vanished, falling back to simulated mode", target)
			l.mu.Lock()
			if l.conn != nil {
				l.conn.close()
				l.conn = nil
			}
			l.mode = ModeSimulated
			l.mu.Unlock()
		}

	case ModeDisconnected:
		if l.portPresent(target) {
			if l.connect(target) {
				log.Printf("device: reconnected to %s", target)
			}
		} else {
			l.setMode(ModeSimulated)
		}

	case ModeSimulated:
		t := target
		if t == "" {
			t = l.autodetect()
		}
		if t != "" && l.portPresent(t) && l.connect(t) {
			log.Printf("device: connection restored to %s", t)
		}
	}
}

// Send issues the logical on/off command. Under simulated or
// disconnected mode the command succeeds logically and is logged as
// simulated. A busy port is retried a fixed number of times and then
// degrades the link; an explicit ERROR token from the device is the
// only failure surfaced to the caller.
func (l *SerialLink) Send(on bool) (Ack, error) {
	cmd := commandToken(on)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mode != ModeConnected || l.conn == nil {
		log.Printf("device: simulated command %s (mode=%s)", cmd, l.mode)
		return Ack{Simulated: true}, nil
	}

	for attempt := 0; attempt < sendAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(l.cfg.RetryBackoff)
		}

		line, err := l.exchange(cmd)
		switch {
		case err == nil:
			if isRejection(line) {
				log.Printf("device: %s rejected: %s", cmd, line)
				return Ack{Raw: line}, rejectionError(line)
			}
			if !isAck(line) {
				log.Printf("device: unexpected response to %s: %q, treating as applied", cmd, line)
				return Ack{Raw: line}, nil
			}
			return Ack{Confirmed: true, Raw: line}, nil

		case errors.Is(err, errNoResponse):
			// The command may still have been applied; report soft
			// success but log it apart from a confirmed ack.
			log.Printf("device: no response to %s within %v, assuming applied", cmd, l.cfg.ReadWindow)
			return Ack{}, nil

		case errors.Is(err, errBusy):
			log.Printf("device: port busy sending %s (attempt %d/%d)", cmd, attempt+1, sendAttempts)
			continue

		default:
			// Hard transport error: the wire is gone. Degrade and
			// report logical success; the prober will recover the link.
			log.Printf("device: transport error sending %s: %v, falling back to simulated mode", cmd, err)
			l.conn.close()
			l.conn = nil
			l.mode = ModeDisconnected
			return Ack{Simulated: true}, nil
		}
	}

	log.Printf("device: port still busy after %d attempts, falling back to simulated mode", sendAttempts)
	l.conn.close()
	l.conn = nil
	l.mode = ModeDisconnected
	return Ack{Simulated: true}, nil
}

// exchange writes one command and reads lines until a recognized
// acknowledgement or the read window elapses. Intermediate chatter
// (debug prints from the microcontroller) is skipped.
func (l *SerialLink) exchange(cmd string) (string, error) {
	if err := l.conn.writeLine(cmd); err != nil {
		return "", err
	}

	deadline := time.Now().Add(l.cfg.ReadWindow)
	var last string
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			if last != "" {
				return last, nil
			}
			return "", errNoResponse
		}
		line, err := l.conn.readLine(remaining)
		if err != nil {
			if errors.Is(err, errNoResponse) && last != "" {
				return last, nil
			}
			return "", err
		}
		if line == "" {
			continue
		}
		last = line
		if isAck(line) || isRejection(line) {
			return line, nil
		}
	}
}

// IsLive reports whether a live transport exists right now.
func (l *SerialLink) IsLive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode == ModeConnected
}

// Status returns a snapshot of the connection state.
func (l *SerialLink) Status() LinkStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LinkStatus{Mode: l.mode, Target: l.target, LastChecked: l.lastChecked}
}

// Close stops the prober and releases the port.
func (l *SerialLink) Close() error {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
	<-l.done

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		err := l.conn.close()
		l.conn = nil
		l.mode = ModeSimulated
		return err
	}
	return nil
}
