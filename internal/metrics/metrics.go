// Package metrics provides Prometheus metrics for the cloudbridge provider.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Event queue metrics
	eventsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbridge_events_enqueued_total",
			Help: "Total number of callback events queued for the application",
		},
		[]string{"kind"},
	)

	eventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbridge_events_dropped_total",
			Help: "Total number of callback events dropped because the queue was full",
		},
		[]string{"kind"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cloudbridge_event_queue_depth",
			Help: "Number of events waiting in the queue",
		},
	)

	// Hydration metrics
	hydrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbridge_hydrations_total",
			Help: "Total number of hydration requests by result",
		},
		[]string{"result"},
	)

	bytesHydrated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudbridge_hydrated_bytes_total",
			Help: "Total bytes committed to placeholders",
		},
	)

	activeTransfers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cloudbridge_active_transfers",
			Help: "Number of hydrations in progress",
		},
	)

	pullDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudbridge_pull_duration_seconds",
			Help:    "Data source chunk pull duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// Completion metrics
	completionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbridge_completions_total",
			Help: "Total completions submitted to the OS",
		},
		[]string{"kind", "status"},
	)

	acksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbridge_acks_total",
			Help: "Total acknowledgments by callback kind",
		},
		[]string{"kind", "status"},
	)

	placeholdersDebounced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudbridge_placeholder_requests_debounced_total",
			Help: "Directory population requests whose bookkeeping was debounced",
		},
	)

	callbacksObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbridge_callbacks_observed_total",
			Help: "Informational callbacks observed without a response",
		},
		[]string{"callback"},
	)

	// S3 metrics
	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudbridge_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbridge_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordEnqueued records an event accepted by the queue.
func RecordEnqueued(kind string, depth int) {
	eventsEnqueuedTotal.WithLabelValues(kind).Inc()
	queueDepth.Set(float64(depth))
}

// RecordDropped records an event rejected by a full queue.
func RecordDropped(kind string) {
	eventsDroppedTotal.WithLabelValues(kind).Inc()
}

// SetQueueDepth sets the current queue depth.
func SetQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}

// RecordHydration records the outcome of a hydration: "success", "error" or "canceled".
func RecordHydration(result string) {
	hydrationsTotal.WithLabelValues(result).Inc()
}

// RecordBytesHydrated adds committed bytes.
func RecordBytesHydrated(n int64) {
	bytesHydrated.Add(float64(n))
}

// SetActiveTransfers sets the number of in-flight hydrations.
func SetActiveTransfers(n int) {
	activeTransfers.Set(float64(n))
}

// RecordPull records a data source pull.
func RecordPull(duration time.Duration, success bool) {
	pullDuration.WithLabelValues(status(success)).Observe(duration.Seconds())
}

// RecordCompletion records a completion submission.
func RecordCompletion(kind string, success bool) {
	completionsTotal.WithLabelValues(kind, status(success)).Inc()
}

// RecordAck records an acknowledgment.
func RecordAck(kind string, success bool) {
	acksTotal.WithLabelValues(kind, status(success)).Inc()
}

// RecordPlaceholdersDebounced records a suppressed population request.
func RecordPlaceholdersDebounced() {
	placeholdersDebounced.Inc()
}

// RecordObserved records an informational callback.
func RecordObserved(callback string) {
	callbacksObserved.WithLabelValues(callback).Inc()
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation string, duration time.Duration, success bool) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	s3OperationsTotal.WithLabelValues(operation, status(success)).Inc()
}
