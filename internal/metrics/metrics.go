// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	EventsRecorded *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec
	AppendFailures prometheus.Counter
	AppendLatency  prometheus.Histogram

	RegistryMutations *prometheus.CounterVec

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auracode_events_recorded_total",
				Help: "Events durably appended, by event type",
			},
			[]string{"event_type"},
		),
		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auracode_events_dropped_total",
				Help: "Events discarded before reaching the store, by reason",
			},
			[]string{"reason"},
		),
		AppendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auracode_event_append_failures_total",
			Help: "Event appends rejected by the store",
		}),
		AppendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auracode_event_append_duration_seconds",
			Help:    "Latency of event store appends",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		RegistryMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auracode_session_mutations_total",
				Help: "Session registry mutations, by operation and result",
			},
			[]string{"op", "result"},
		),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.EventsRecorded,
			m.EventsDropped,
			m.AppendFailures,
			m.AppendLatency,
			m.RegistryMutations,
			m.RequestCounter,
			m.RequestDuration,
		)
	}
	return m
}

// EventRecorded counts a successful append.
func (m *Metrics) EventRecorded(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.EventsRecorded.WithLabelValues(eventType).Inc()
	m.AppendLatency.Observe(seconds)
}

// EventDropped counts an event discarded before append.
func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(reason).Inc()
}

// AppendFailed counts an append the store rejected.
func (m *Metrics) AppendFailed(seconds float64) {
	if m == nil {
		return
	}
	m.AppendFailures.Inc()
	m.AppendLatency.Observe(seconds)
}

// Mutation counts a registry mutation outcome.
func (m *Metrics) Mutation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RegistryMutations.WithLabelValues(op, result).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, endpoint string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.RequestCounter.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, endpoint).Observe(seconds)
}
