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
		[]string{"method", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "status"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// StreamSessionsTotal counts streaming sessions by outcome.
	StreamSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_stream_sessions_total",
			Help: "Chat streaming sessions by outcome",
		},
		[]string{"outcome"},
	)

	// StreamSessionDuration tracks how long a session takes from send to completion.
	StreamSessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_stream_session_duration_seconds",
			Help:    "Chat streaming session duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	// StreamFragmentsTotal counts parsed fragments by channel (primary or side).
	StreamFragmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_stream_fragments_total",
			Help: "Parsed stream fragments",
		},
		[]string{"channel"},
	)

	// MalformedFramesTotal counts NDJSON lines that failed to parse.
	MalformedFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_stream_malformed_frames_total",
			Help: "Stream lines skipped because they were not valid JSON",
		},
	)

	// StreamReadersOpen tracks response readers that have not been released.
	StreamReadersOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_stream_readers_open",
			Help: "Open stream response readers",
		},
	)

	// MessagesTotal tracks finalized messages by role.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total finalized messages",
		},
		[]string{"role"},
	)

	// RecorderFailuresTotal counts persistence or publish failures of the recorder.
	RecorderFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recorder_failures_total",
			Help: "Failed message persistence or event publication",
		},
		[]string{"sink"},
	)

	// MessageRenumberedTotal counts messages stored under a new id because
	// their id was already taken in the thread.
	MessageRenumberedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "message_renumbered_total",
			Help: "Messages stored under a new id after an id conflict",
		},
	)

	// RelayFragmentsTotal counts frames written by the development agent relay.
	RelayFragmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_fragments_total",
			Help: "Frames written by the agent relay",
		},
		[]string{"provider", "channel"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, status string, duration float64) {
	RequestDuration.WithLabelValues(method, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, status).Inc()
}

// RecordSession records the outcome of one streaming session.
func RecordSession(outcome string, duration float64) {
	StreamSessionsTotal.WithLabelValues(outcome).Inc()
	StreamSessionDuration.WithLabelValues(outcome).Observe(duration)
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
