package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/ttyUSB0
  baud: 115200
mqtt:
  enabled: true
  broker: tcp://broker.local:1883
thresholds:
  moisture_low: 25
  cooldown_seconds: 600
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, 25.0, cfg.Thresholds.MoistureLow)
	assert.Equal(t, 10*time.Minute, cfg.Cooldown())

	// Untouched sections keep their defaults.
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 80.0, cfg.Thresholds.MoistureHigh)
	assert.Equal(t, 30*time.Second, cfg.ScheduleTick())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "serial: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero baud", func(c *Config) { c.Serial.Baud = 0 }},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "" }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"non-positive default duration", func(c *Config) { c.Pump.DefaultDurationSeconds = 0 }},
		{"inverted moisture band", func(c *Config) { c.Thresholds.MoistureLow = 90 }},
		{"negative cooldown", func(c *Config) { c.Thresholds.CooldownSeconds = -1 }},
		{"zero schedule tick", func(c *Config) { c.Timing.ScheduleTickSeconds = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 2*time.Second, cfg.DefaultDuration())
	assert.Equal(t, 5*time.Minute, cfg.Cooldown())
	assert.Equal(t, 5*time.Second, cfg.ProbeInterval())
}
