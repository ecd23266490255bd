package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamsafe_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	// Analysis stage
	AnalysisRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamsafe_analysis_runs_total",
			Help: "Completed analysis runs by outcome",
		},
		[]string{"outcome"}, // "safe", "flagged", "failed", "gone"
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamsafe_analysis_duration_seconds",
			Help:    "Wall-clock duration of analysis runs",
			Buckets: []float64{1, 2.5, 5, 7.5, 10, 15, 30, 60},
		},
	)

	AnalysisInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamsafe_analysis_in_flight",
			Help: "Analysis runs currently executing",
		},
	)

	// Realtime notifier
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamsafe_realtime_connections",
			Help: "Currently registered realtime connections",
		},
	)

	RealtimeEventsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamsafe_realtime_events_sent_total",
			Help: "Events queued for delivery to a connection",
		},
		[]string{"event"},
	)

	RealtimeEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamsafe_realtime_events_dropped_total",
			Help: "Events dropped because the connection was unknown or its buffer was full",
		},
		[]string{"reason"}, // "unknown_connection", "buffer_full"
	)

	// Blob storage
	BlobOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamsafe_blob_operations_total",
			Help: "Object storage operations by result",
		},
		[]string{"operation", "result"},
	)

	BlobBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamsafe_blob_breaker_state",
			Help: "Object storage circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// RecordHTTPRequest observes a finished request.
func RecordHTTPRequest(method string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordAnalysisRun counts a finished run and its duration.
func RecordAnalysisRun(outcome string, duration time.Duration) {
	AnalysisRuns.WithLabelValues(outcome).Inc()
	AnalysisDuration.Observe(duration.Seconds())
}

// RecordBlobOperation counts a storage call; err decides the result label.
func RecordBlobOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	BlobOperations.WithLabelValues(operation, result).Inc()
}
