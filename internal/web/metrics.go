package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/garden-pump/internal/device"
	"github.com/sweeney/garden-pump/internal/pump"
)

// Metrics holds the Prometheus collectors for the daemon. Each Server
// owns its own registry so tests can build servers side by side.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates a registry with the standard process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RegisterPumpState exposes the actuator state as a 0/1 gauge.
func (m *Metrics) RegisterPumpState(status func() pump.State) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pump_on",
		Help: "Whether the pump is currently on (1) or off (0).",
	}, func() float64 {
		if status().On {
			return 1
		}
		return 0
	}))
}

// RegisterLinkMode exposes the transport mode as a gauge
// (0 simulated, 1 disconnected, 2 connected).
func (m *Metrics) RegisterLinkMode(status func() device.LinkStatus) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "device_link_mode",
		Help: "Transport mode: 0 simulated, 1 disconnected, 2 connected.",
	}, func() float64 {
		switch status().Mode {
		case device.ModeConnected:
			return 2
		case device.ModeDisconnected:
			return 1
		default:
			return 0
		}
	}))
}

// RegisterScheduleCount exposes the number of stored schedules.
func (m *Metrics) RegisterScheduleCount(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "schedule_entries",
		Help: "Number of configured watering schedules.",
	}, func() float64 {
		return float64(count())
	}))
}

// Handler serves the metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// instrument wraps a handler with request counting and timing.
func (m *Metrics) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		m.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
