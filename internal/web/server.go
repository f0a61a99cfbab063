// Package web provides the HTTP control API for the garden-pump daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/sweeney/garden-pump/internal/device"
	"github.com/sweeney/garden-pump/internal/intent"
	"github.com/sweeney/garden-pump/internal/pump"
	"github.com/sweeney/garden-pump/internal/response"
	"github.com/sweeney/garden-pump/internal/schedule"
)

// Submitter enqueues an intent for the coordinator.
type Submitter func(intent.Intent) bool

// Server serves the control API. Mutating pump endpoints go through the
// coordinator queue like every other producer; the handlers never talk
// to the actuator directly.
type Server struct {
	httpServer *http.Server

	core      *pump.Controller
	link      device.Link
	submit    Submitter
	schedules *schedule.Engine
	arbiter   *response.Arbiter
	metrics   *Metrics
}

// New creates a Server. metrics may be nil to disable the endpoint.
func New(addr string, core *pump.Controller, link device.Link, submit Submitter, schedules *schedule.Engine, arbiter *response.Arbiter, metrics *Metrics) *Server {
	s := &Server{
		core:      core,
		link:      link,
		submit:    submit,
		schedules: schedules,
		arbiter:   arbiter,
		metrics:   metrics,
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handlers.CombinedLoggingHandler(os.Stdout, handlers.RecoveryHandler()(s.router())),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.route("healthz", s.handleHealth)).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	r.HandleFunc("/api/pump/status", s.route("pump_status", s.handlePumpStatus)).Methods("GET")
	r.HandleFunc("/api/pump/on", s.route("pump_on", s.handlePumpOn)).Methods("POST")
	r.HandleFunc("/api/pump/off", s.route("pump_off", s.handlePumpOff)).Methods("POST")
	r.HandleFunc("/api/pump/toggle", s.route("pump_toggle", s.handlePumpToggle)).Methods("POST")
	r.HandleFunc("/api/pump/duration", s.route("pump_duration", s.handlePumpDuration)).Methods("POST")

	r.HandleFunc("/api/scheduler", s.route("scheduler_list", s.handleSchedulerList)).Methods("GET")
	r.HandleFunc("/api/scheduler/add", s.route("scheduler_add", s.handleSchedulerAdd)).Methods("POST")
	r.HandleFunc("/api/scheduler/remove/{id}", s.route("scheduler_remove", s.handleSchedulerRemove)).Methods("POST")
	r.HandleFunc("/api/scheduler/toggle/{id}", s.route("scheduler_toggle", s.handleSchedulerToggle)).Methods("POST")

	r.HandleFunc("/api/auto-response/status", s.route("response_status", s.handleResponseStatus)).Methods("GET")
	r.HandleFunc("/api/auto-response/toggle", s.route("response_toggle", s.handleResponseToggle)).Methods("POST")

	return r
}

func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	if s.metrics == nil {
		return h
	}
	return s.metrics.instrument(name, h)
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePumpStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pumpStatus())
}

func (s *Server) handlePumpOn(w http.ResponseWriter, r *http.Request) {
	duration := s.core.DefaultDuration()
	var req DurationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Duration < 0 {
		writeError(w, http.StatusBadRequest, "duration must be greater than 0")
		return
	}
	if req.Duration > 0 {
		duration = time.Duration(req.Duration * float64(time.Second))
	}

	s.submit(intent.Activate(intent.Manual(), duration))
	writeJSON(w, http.StatusOK, CommandResponse{
		Success:    true,
		Status:     "on",
		Message:    "pump on requested",
		Duration:   duration.Seconds(),
		PumpStatus: s.pumpStatus(),
	})
}

func (s *Server) handlePumpOff(w http.ResponseWriter, r *http.Request) {
	s.submit(intent.Deactivate(intent.Manual()))
	writeJSON(w, http.StatusOK, CommandResponse{
		Success:    true,
		Status:     "off",
		Message:    "pump off requested",
		PumpStatus: s.pumpStatus(),
	})
}

func (s *Server) handlePumpToggle(w http.ResponseWriter, r *http.Request) {
	s.submit(intent.Intent{Action: intent.ActionToggle, Source: intent.Manual()})
	writeJSON(w, http.StatusOK, CommandResponse{
		Success:    true,
		Message:    "pump toggle requested",
		PumpStatus: s.pumpStatus(),
	})
}

func (s *Server) handlePumpDuration(w http.ResponseWriter, r *http.Request) {
	var req DurationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d := time.Duration(req.Duration * float64(time.Second))
	if err := s.core.SetDefaultDuration(d); err != nil {
		writeError(w, http.StatusBadRequest, "duration must be greater than 0")
		return
	}

	writeJSON(w, http.StatusOK, CommandResponse{
		Success:  true,
		Duration: s.core.DefaultDuration().Seconds(),
		Message:  "default duration updated",
	})
}

func (s *Server) handleSchedulerList(w http.ResponseWriter, r *http.Request) {
	entries := s.schedules.List()
	out := SchedulerStatusJSON{
		Schedules: make([]ScheduleJSON, 0, len(entries)),
		Conflicts: s.schedules.Conflicts(),
	}
	for _, e := range entries {
		out.Schedules = append(out.Schedules, scheduleJSON(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSchedulerAdd(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StartTime == "" {
		writeError(w, http.StatusBadRequest, "start_time is required (format: HH:MM)")
		return
	}

	hour, minute, err := schedule.ParseClock(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_time must be HH:MM")
		return
	}

	entry := schedule.Entry{
		ID:          req.ID,
		StartHour:   hour,
		StartMinute: minute,
		Duration:    time.Duration(req.DurationSeconds * float64(time.Second)),
		Days:        req.Days,
		Enabled:     true,
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if req.Enabled != nil {
		entry.Enabled = *req.Enabled
	}

	saved, err := s.schedules.Upsert(entry)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "schedule added",
		"schedule": scheduleJSON(saved),
	})
}

func (s *Server) handleSchedulerRemove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.schedules.Remove(id); err != nil {
		if errors.Is(err, schedule.ErrUnknownID) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "schedule removed",
	})
}

func (s *Server) handleSchedulerToggle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	enabled, err := s.schedules.ToggleEnabled(id)
	if err != nil {
		if errors.Is(err, schedule.ErrUnknownID) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	message := "schedule disabled"
	if enabled {
		message = "schedule enabled"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
		"enabled": enabled,
	})
}

func (s *Server) handleResponseStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, responseStatusJSON(s.arbiter.Status()))
}

func (s *Server) handleResponseToggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	enabled := !s.arbiter.Enabled()
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	s.arbiter.SetEnabled(enabled)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"enabled": enabled,
	})
}

func (s *Server) pumpStatus() *PumpStatusJSON {
	return pumpStatusJSON(s.core.Status(), s.link.Status(), s.core.DefaultDuration())
}

// decodeBody parses an optional JSON body. An empty body leaves dst at
// its zero value.
func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: msg})
}
