// Package metrics holds the Prometheus collectors exposed by the dashboard.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a private registry plus the collectors postdesk records into.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	gatewayRequests *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	sessionSaves    *prometheus.CounterVec
	sessionsOpen    prometheus.Gauge
	uploadBytes     prometheus.Counter
}

// New builds a registry with the Go and process collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "postdesk",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Platform API requests by operation and status code.",
		}, []string{"op", "code"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "postdesk",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Platform API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		sessionSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "postdesk",
			Subsystem: "session",
			Name:      "saves_total",
			Help:      "Edit session saves by result.",
		}, []string{"result"}),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "postdesk",
			Subsystem: "session",
			Name:      "open",
			Help:      "Edit sessions currently open.",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "postdesk",
			Subsystem: "video",
			Name:      "upload_bytes_total",
			Help:      "Bytes sent to the upload destination.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.gatewayRequests,
		m.gatewayLatency,
		m.sessionSaves,
		m.sessionsOpen,
		m.uploadBytes,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one gateway call. code is 0 for transport failures.
func (m *Metrics) ObserveRequest(op string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(op, strconv.Itoa(code)).Inc()
	m.gatewayLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SessionSaved records a save outcome: "ok", "error" or "skipped".
func (m *Metrics) SessionSaved(result string) {
	if m == nil {
		return
	}
	m.sessionSaves.WithLabelValues(result).Inc()
}

// SessionOpened adjusts the open-session gauge by delta.
func (m *Metrics) SessionOpened(delta int) {
	if m == nil {
		return
	}
	m.sessionsOpen.Add(float64(delta))
}

// UploadProgress adds n sent bytes.
func (m *Metrics) UploadProgress(n int) {
	if m == nil {
		return
	}
	m.uploadBytes.Add(float64(n))
}
