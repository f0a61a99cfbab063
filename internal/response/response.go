// Package response watches sensor threshold crossings and emits pump
// intents, with a per-category cooldown to prevent thrash when a
// reading hovers near a threshold. It never touches the actuator
// directly.
package response

import (
	"log"
	"sync"
	"time"

	"github.com/sweeney/garden-pump/internal/intent"
)

// Response categories.
const (
	CategoryMoistureLow     = "moisture_low"
	CategoryMoistureHigh    = "moisture_high"
	CategoryTemperatureHigh = "temperature_high"
)

// DefaultTickInterval is the evaluation period.
const DefaultTickInterval = 30 * time.Second

// Readings is one pull of sensor values. A nil field means the reading
// is unavailable and suppresses evaluation for that metric.
type Readings struct {
	Temperature *float64 // °C
	Humidity    *float64 // %
	Moisture    *float64 // %
}

// SensorFunc pulls the current sensor readings.
type SensorFunc func() Readings

// Thresholds is the fixed response configuration.
type Thresholds struct {
	MoistureLow     float64       // pump on below this (%)
	MoistureHigh    float64       // safety cutoff above this (%)
	TemperatureHigh float64       // °C; rule kept but disabled by default
	Cooldown        time.Duration // minimum gap between firings of one category
	RunDuration     time.Duration // how long an auto-activation runs

	// TemperatureEnabled turns the cooling rule on. Off by default:
	// only dry soil and the operator may start the pump.
	TemperatureEnabled bool
}

// DefaultThresholds mirror the field-tested values of the garden rig.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MoistureLow:     30,
		MoistureHigh:    80,
		TemperatureHigh: 30,
		Cooldown:        5 * time.Minute,
		RunDuration:     2 * time.Second,
	}
}

// Status is a read-only snapshot for the API.
type Status struct {
	Enabled    bool
	Thresholds Thresholds
	LastFired  map[string]time.Time
}

// Arbiter evaluates readings against thresholds. Each category tracks
// its own last-fired timestamp; firing one category does not reset
// another's cooldown.
type Arbiter struct {
	mu        sync.Mutex
	cfg       Thresholds
	enabled   bool
	lastFired map[string]time.Time
	now       func() time.Time
}

// NewArbiter creates an enabled arbiter.
func NewArbiter(cfg Thresholds) *Arbiter {
	return &Arbiter{
		cfg:       cfg,
		enabled:   true,
		lastFired: make(map[string]time.Time),
		now:       time.Now,
	}
}

// SetEnabled turns all automatic responses on or off.
func (a *Arbiter) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()
	log.Printf("response: auto-response enabled=%v", enabled)
}

// Enabled reports whether automatic responses are active.
func (a *Arbiter) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Status returns a snapshot of configuration and firing history.
func (a *Arbiter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	last := make(map[string]time.Time, len(a.lastFired))
	for k, v := range a.lastFired {
		last[k] = v
	}
	return Status{Enabled: a.enabled, Thresholds: a.cfg, LastFired: last}
}

// Check evaluates one set of readings. pumpOn is the actuator's current
// logical state; the high-moisture cutoff only applies while the pump
// runs. At most one intent is returned per call.
func (a *Arbiter) Check(r Readings, pumpOn bool) (intent.Intent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.enabled {
		return intent.Intent{}, false
	}
	now := a.now()

	if r.Moisture != nil {
		m := *r.Moisture
		switch {
		case m < a.cfg.MoistureLow:
			if !a.cooldownElapsed(CategoryMoistureLow, now) {
				return intent.Intent{}, false
			}
			log.Printf("response: moisture %.1f%% below %.1f%%, pump on for %v",
				m, a.cfg.MoistureLow, a.cfg.RunDuration)
			a.lastFired[CategoryMoistureLow] = now
			return intent.Activate(intent.AutoResponse(CategoryMoistureLow), a.cfg.RunDuration), true

		case m > a.cfg.MoistureHigh && pumpOn:
			// Safety cutoff, not a repeatable trigger: no cooldown.
			log.Printf("response: moisture %.1f%% above %.1f%%, pump off", m, a.cfg.MoistureHigh)
			return intent.Deactivate(intent.AutoResponse(CategoryMoistureHigh)), true
		}
	}

	if a.cfg.TemperatureEnabled && r.Temperature != nil && *r.Temperature > a.cfg.TemperatureHigh {
		if a.cooldownElapsed(CategoryTemperatureHigh, now) {
			log.Printf("response: temperature %.1f°C above %.1f°C, pump on for cooling",
				*r.Temperature, a.cfg.TemperatureHigh)
			a.lastFired[CategoryTemperatureHigh] = now
			return intent.Activate(intent.AutoResponse(CategoryTemperatureHigh), a.cfg.RunDuration), true
		}
	}

	return intent.Intent{}, false
}

func (a *Arbiter) cooldownElapsed(category string, now time.Time) bool {
	last, ok := a.lastFired[category]
	if !ok {
		return true
	}
	return now.Sub(last) > a.cfg.Cooldown
}

// Run drives the evaluation loop: one sensor pull and one check per
// tick. It returns when stop is closed.
func (a *Arbiter) Run(stop <-chan struct{}, tick <-chan time.Time, sensors SensorFunc, pumpOn func() bool, submit func(intent.Intent)) {
	for {
		select {
		case <-stop:
			return
		case <-tick:
			if it, ok := a.Check(sensors(), pumpOn()); ok {
				submit(it)
			}
		}
	}
}
