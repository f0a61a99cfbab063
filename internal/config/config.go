// Package config loads the daemon's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the configuration file structure.
type Config struct {
	Serial struct {
		Port string `yaml:"port"` // empty = autodetect
		Baud int    `yaml:"baud"`
	} `yaml:"serial"`

	GPIO struct {
		Enabled   bool `yaml:"enabled"`
		Pin       int  `yaml:"pin"`
		ActiveLow bool `yaml:"active_low"`
	} `yaml:"gpio"`

	MQTT struct {
		Enabled  bool   `yaml:"enabled"`
		Broker   string `yaml:"broker"`
		ClientID string `yaml:"client_id"`
	} `yaml:"mqtt"`

	HTTP struct {
		Addr string `yaml:"addr"` // empty = disabled
	} `yaml:"http"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Pump struct {
		DefaultDurationSeconds float64 `yaml:"default_duration_seconds"`
	} `yaml:"pump"`

	Thresholds struct {
		MoistureLow        float64 `yaml:"moisture_low"`
		MoistureHigh       float64 `yaml:"moisture_high"`
		TemperatureHigh    float64 `yaml:"temperature_high"`
		TemperatureEnabled bool    `yaml:"temperature_enabled"`
		CooldownSeconds    float64 `yaml:"cooldown_seconds"`
		RunDurationSeconds float64 `yaml:"run_duration_seconds"`
	} `yaml:"thresholds"`

	Timing struct {
		ScheduleTickSeconds float64 `yaml:"schedule_tick_seconds"`
		ResponseTickSeconds float64 `yaml:"response_tick_seconds"`
		ProbeSeconds        float64 `yaml:"probe_seconds"`
	} `yaml:"timing"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Serial.Baud = 9600
	cfg.GPIO.Pin = 8
	cfg.GPIO.ActiveLow = true
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "garden-pump"
	cfg.HTTP.Addr = ":8080"
	cfg.Database.Path = "garden-pump.db"
	cfg.Pump.DefaultDurationSeconds = 2
	cfg.Thresholds.MoistureLow = 30
	cfg.Thresholds.MoistureHigh = 80
	cfg.Thresholds.TemperatureHigh = 30
	cfg.Thresholds.CooldownSeconds = 300
	cfg.Thresholds.RunDurationSeconds = 2
	cfg.Timing.ScheduleTickSeconds = 30
	cfg.Timing.ResponseTickSeconds = 30
	cfg.Timing.ProbeSeconds = 5
	return &cfg
}

// Load reads and validates a configuration file. Values absent from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run
// loop.
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive")
	}
	if c.GPIO.Enabled && c.GPIO.Pin < 0 {
		return fmt.Errorf("gpio.pin must be non-negative")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Pump.DefaultDurationSeconds <= 0 {
		return fmt.Errorf("pump.default_duration_seconds must be positive")
	}
	if c.Thresholds.MoistureLow >= c.Thresholds.MoistureHigh {
		return fmt.Errorf("thresholds.moisture_low must be below moisture_high")
	}
	if c.Thresholds.CooldownSeconds < 0 {
		return fmt.Errorf("thresholds.cooldown_seconds must be non-negative")
	}
	if c.Timing.ScheduleTickSeconds <= 0 || c.Timing.ResponseTickSeconds <= 0 {
		return fmt.Errorf("timing intervals must be positive")
	}
	return nil
}

// DefaultDuration returns the pump default run time as a Duration.
func (c *Config) DefaultDuration() time.Duration {
	return secondsToDuration(c.Pump.DefaultDurationSeconds)
}

// Cooldown returns the auto-response cooldown as a Duration.
func (c *Config) Cooldown() time.Duration {
	return secondsToDuration(c.Thresholds.CooldownSeconds)
}

// RunDuration returns the auto-response run time as a Duration.
func (c *Config) RunDuration() time.Duration {
	return secondsToDuration(c.Thresholds.RunDurationSeconds)
}

// ScheduleTick returns the schedule evaluation interval.
func (c *Config) ScheduleTick() time.Duration {
	return secondsToDuration(c.Timing.ScheduleTickSeconds)
}

// ResponseTick returns the sensor evaluation interval.
func (c *Config) ResponseTick() time.Duration {
	return secondsToDuration(c.Timing.ResponseTickSeconds)
}

// ProbeInterval returns the serial connection check interval.
func (c *Config) ProbeInterval() time.Duration {
	return secondsToDuration(c.Timing.ProbeSeconds)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
