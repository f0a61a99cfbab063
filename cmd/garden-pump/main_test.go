package main

import (
	"testing"

	"github.com/sweeney/garden-pump/internal/config"
)

func TestBuildLinkSerialFallsBackToSimulation(t *testing.T) {
	cfg := config.Default()
	cfg.Serial.Port = "/dev/does-not-exist"

	link, err := buildLink(cfg)
	if err != nil {
		t.Fatalf("buildLink: %v", err)
	}
	defer link.Close()

	if link.IsLive() {
		t.Error("expected non-live link for a missing port")
	}
}

func TestNoSensorsReturnsNilReadings(t *testing.T) {
	r := noSensors()
	if r.Temperature != nil || r.Humidity != nil || r.Moisture != nil {
		t.Error("expected all-nil readings")
	}
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	if !names["run"] || !names["version"] {
		t.Errorf("missing subcommands, got %v", names)
	}
}
