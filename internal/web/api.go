package web

import (
	"time"

	"github.com/sweeney/garden-pump/internal/device"
	"github.com/sweeney/garden-pump/internal/pump"
	"github.com/sweeney/garden-pump/internal/response"
	"github.com/sweeney/garden-pump/internal/schedule"
)

// PumpStatusJSON is the JSON representation of the pump state.
type PumpStatusJSON struct {
	IsOn            bool    `json:"is_on"`
	Source          string  `json:"source"`
	Mode            string  `json:"mode"`
	Port            string  `json:"port,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	ActivatedAt     string  `json:"activated_at,omitempty"`
	Deadline        string  `json:"deadline,omitempty"`
	LastChange      string  `json:"last_change,omitempty"`
}

// CommandResponse is the envelope for mutating pump endpoints.
type CommandResponse struct {
	Success    bool            `json:"success"`
	Status     string          `json:"status,omitempty"`
	Message    string          `json:"message,omitempty"`
	Duration   float64         `json:"duration,omitempty"`
	PumpStatus *PumpStatusJSON `json:"pump_status,omitempty"`
}

// ErrorResponse is the envelope for failures.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// DurationRequest is the body for on/duration endpoints.
type DurationRequest struct {
	Duration float64 `json:"duration"`
}

// ScheduleJSON is the JSON representation of one schedule.
type ScheduleJSON struct {
	ID              string  `json:"id"`
	StartTime       string  `json:"start_time"`
	DurationSeconds float64 `json:"duration_seconds"`
	Days            []int   `json:"days,omitempty"`
	Enabled         bool    `json:"enabled"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// ScheduleRequest is the body for the add endpoint. Days uses 0=Monday
// through 6=Sunday; omitted means every day.
type ScheduleRequest struct {
	ID              string  `json:"id"`
	StartTime       string  `json:"start_time"`
	DurationSeconds float64 `json:"duration_seconds"`
	Days            []int   `json:"days"`
	Enabled         *bool   `json:"enabled"`
}

// SchedulerStatusJSON is the scheduler overview.
type SchedulerStatusJSON struct {
	Schedules []ScheduleJSON `json:"schedules"`
	Conflicts []string       `json:"conflicts,omitempty"`
}

// ResponseStatusJSON is the auto-response overview.
type ResponseStatusJSON struct {
	Enabled    bool               `json:"enabled"`
	Thresholds ThresholdsJSON     `json:"thresholds"`
	LastFired  map[string]string  `json:"last_fired,omitempty"`
}

// ThresholdsJSON mirrors the configured trigger levels.
type ThresholdsJSON struct {
	MoistureLow        float64 `json:"moisture_low"`
	MoistureHigh       float64 `json:"moisture_high"`
	TemperatureHigh    float64 `json:"temperature_high"`
	TemperatureEnabled bool    `json:"temperature_enabled"`
	CooldownSeconds    float64 `json:"cooldown_seconds"`
	RunDurationSeconds float64 `json:"run_duration_seconds"`
}

// ToggleRequest optionally forces a specific enabled state.
type ToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func pumpStatusJSON(st pump.State, link device.LinkStatus, defaultDuration time.Duration) *PumpStatusJSON {
	out := &PumpStatusJSON{
		IsOn:            st.On,
		Source:          st.Source.String(),
		Mode:            string(link.Mode),
		Port:            link.Target,
		DurationSeconds: defaultDuration.Seconds(),
	}
	if !st.ActivatedAt.IsZero() {
		out.ActivatedAt = st.ActivatedAt.UTC().Format(time.RFC3339)
	}
	if !st.Deadline.IsZero() {
		out.Deadline = st.Deadline.UTC().Format(time.RFC3339)
	}
	if !st.LastChange.IsZero() {
		out.LastChange = st.LastChange.UTC().Format(time.RFC3339)
	}
	return out
}

func scheduleJSON(e schedule.Entry) ScheduleJSON {
	out := ScheduleJSON{
		ID:              e.ID,
		StartTime:       e.StartString(),
		DurationSeconds: e.Duration.Seconds(),
		Days:            e.Days,
		Enabled:         e.Enabled,
	}
	if !e.CreatedAt.IsZero() {
		out.CreatedAt = e.CreatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func responseStatusJSON(st response.Status) ResponseStatusJSON {
	out := ResponseStatusJSON{
		Enabled: st.Enabled,
		Thresholds: ThresholdsJSON{
			MoistureLow:        st.Thresholds.MoistureLow,
			MoistureHigh:       st.Thresholds.MoistureHigh,
			TemperatureHigh:    st.Thresholds.TemperatureHigh,
			TemperatureEnabled: st.Thresholds.TemperatureEnabled,
			CooldownSeconds:    st.Thresholds.Cooldown.Seconds(),
			RunDurationSeconds: st.Thresholds.RunDuration.Seconds(),
		},
	}
	if len(st.LastFired) > 0 {
		out.LastFired = make(map[string]string, len(st.LastFired))
		for category, at := range st.LastFired {
			out.LastFired[category] = at.UTC().Format(time.RFC3339)
		}
	}
	return out
}
