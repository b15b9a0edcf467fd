package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmon_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsmon_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route", "status"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsmon_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "route"},
	)

	// Metric readings
	MetricValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opsmon_metric_value",
			Help: "Last normalized value read for each monitored metric",
		},
		[]string{"metric"},
	)

	ThresholdExceeded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opsmon_threshold_exceeded",
			Help: "1 while the metric is in the warning state",
		},
		[]string{"metric"},
	)

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmon_transitions_total",
			Help: "Total number of threshold transitions",
		},
		[]string{"metric", "transition"}, // transition: warning, restored
	)

	ReadErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmon_read_errors_total",
			Help: "Total number of failed metric reads",
		},
		[]string{"metric", "reason"}, // reason: io, not-found, parse
	)

	// Cycle metrics
	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsmon_cycles_total",
			Help: "Total number of completed polling cycles",
		},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "opsmon_cycle_duration_seconds",
			Help:    "Time taken by one polling cycle",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// Sink metrics
	SinkEmitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmon_sink_emits_total",
			Help: "Total number of entries handed to each sink",
		},
		[]string{"sink", "status"}, // status: success, failed
	)

	SinkRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmon_sink_rate_limited_total",
			Help: "Total number of entries dropped by the resend interval",
		},
		[]string{"sink"},
	)

	WebhookRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsmon_webhook_retries_total",
			Help: "Total number of webhook delivery retries",
		},
	)

	// Kafka producer metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmon_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "opsmon_kafka_publish_duration_seconds",
			Help:    "Time taken to publish to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsmon_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsmon_kafka_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmon_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
