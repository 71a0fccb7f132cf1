// Package metrics exposes Prometheus collectors for the translator.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Workflow request outcomes.
const (
	OutcomeSuccess        = "success"
	OutcomeTransportError = "transport_error"
	OutcomeHTTPError      = "http_error"
	OutcomeDecodeError    = "decode_error"
	OutcomeNoTerminal     = "no_terminal_event"
)

// Stream frame kinds.
const (
	FrameData     = "data"
	FrameIgnored  = "ignored"
	FrameTerminal = "terminal"
)

var (
	workflowRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "translator_workflow_requests_total",
			Help: "Total number of workflow requests, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	workflowRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "translator_workflow_request_duration_seconds",
			Help:    "Histogram of workflow request latencies, labeled by outcome.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	streamBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "translator_stream_bytes_total",
			Help: "Total number of event-stream bytes read from the workflow.",
		},
	)

	streamFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "translator_stream_frames_total",
			Help: "Total number of event-stream frames decoded, labeled by kind.",
		},
		[]string{"kind"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "translator_active_workers",
			Help: "Number of workers currently running.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "translator_http_requests_total",
			Help: "Total number of status server requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "translator_http_request_duration_seconds",
			Help:    "Histogram of status server latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveWorkflowRequest records one workflow call and its latency.
func ObserveWorkflowRequest(outcome string, duration time.Duration) {
	workflowRequestsTotal.WithLabelValues(outcome).Inc()
	workflowRequestDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// AddStreamBytes adds n bytes read from an event stream.
func AddStreamBytes(n int) {
	if n > 0 {
		streamBytesTotal.Add(float64(n))
	}
}

// ObserveStreamFrame increments the frame counter for kind.
func ObserveStreamFrame(kind string) {
	streamFramesTotal.WithLabelValues(kind).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the status server request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
