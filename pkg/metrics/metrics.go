// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ChatRoundTripDuration tracks chat backend round-trip duration.
	ChatRoundTripDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_round_trip_duration_seconds",
			Help:    "Chat backend round-trip duration",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"backend", "status"},
	)

	// FlowTransitionsTotal tracks scripted flow transitions.
	FlowTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_transitions_total",
			Help: "Scripted flow transitions",
		},
		[]string{"flow", "step"},
	)

	// FlowsCompletedTotal tracks completed or cancelled flows.
	FlowsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flows_completed_total",
			Help: "Flows archived to completion",
		},
		[]string{"flow"},
	)

	// StagedStepsTotal tracks payload steps staged from chat responses.
	StagedStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staged_steps_total",
			Help: "Payload steps staged for review",
		},
		[]string{"type"},
	)

	// ExecutionsTotal tracks executor submissions.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executions_total",
			Help: "Executor submissions",
		},
		[]string{"mode", "status"},
	)

	// ConnectAttemptsTotal tracks token exchange attempts.
	ConnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connect_attempts_total",
			Help: "Token exchange attempts",
		},
		[]string{"environment", "status"},
	)

	// ConversationsTotal tracks conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Conversations created",
		},
		[]string{"tenant_id"},
	)

	// MessagesTotal tracks messages appended to transcripts.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Messages appended to transcripts",
		},
		[]string{"tenant_id", "role"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordChatRoundTrip records one chat backend call.
func RecordChatRoundTrip(backend, status string, duration float64) {
	ChatRoundTripDuration.WithLabelValues(backend, status).Observe(duration)
}
