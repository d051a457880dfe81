package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Requests by terminal pipeline outcome (accepted, health, method_not_allowed, ...).
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagehooks_requests_total",
			Help: "Total number of webhook requests by outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	// Dispatched events. kind is bounded: unrecognized types count as "unknown".
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagehooks_events_total",
			Help: "Total number of dispatched events by kind and handler outcome",
		},
		[]string{"endpoint", "kind", "outcome"},
	)

	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagehooks_verifications_total",
			Help: "Credential verification results (open, verified, failed)",
		},
		[]string{"endpoint", "result"},
	)

	BodyBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagehooks_body_bytes_total",
			Help: "Total bytes of webhook bodies read",
		},
		[]string{"endpoint"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagehooks_request_duration_seconds",
			Help:    "Duration of webhook pipeline execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagehooks_sink_errors_total",
			Help: "Total number of failed deliveries to event sinks",
		},
		[]string{"endpoint"},
	)
)
