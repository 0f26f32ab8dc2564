// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sale_smell"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Orchestration metrics
	RunsTotal      prometheus.Counter
	RunsActive     prometheus.Gauge
	RunOutcomes    *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	PollIterations prometheus.Counter

	// Provider metrics
	ProviderRequests *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	ProviderRetries  *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec

	// Audio metrics
	AudioBytesUploaded prometheus.Counter
	ValidationFailures *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequests     *prometheus.CounterVec
	HTTPLatency      *prometheus.HistogramVec
	WebSocketsActive prometheus.Gauge
	GRPCRequests     *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Orchestration metrics
		RunsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of transcription runs started",
		}),
		RunsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Number of transcription runs currently in flight",
		}),
		RunOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Total number of finished runs by outcome",
		}, []string{"outcome"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of transcription runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		PollIterations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_iterations_total",
			Help:      "Total number of job status polls",
		}),

		// Provider metrics
		ProviderRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of provider calls",
		}, []string{"operation"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Total number of failed provider calls",
		}, []string{"operation", "error_type"}),
		ProviderRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Total number of provider call retries",
		}, []string{"operation"}),
		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Provider call latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"operation"}),

		// Audio metrics
		AudioBytesUploaded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_uploaded_total",
			Help:      "Total audio bytes uploaded to the provider",
		}),
		ValidationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Total number of rejected audio uploads",
		}, []string{"layer"}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// HTTP metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP API requests",
		}, []string{"method", "route", "code"}),
		HTTPLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		WebSocketsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websockets_active",
			Help:      "Number of open progress WebSocket connections",
		}),
		GRPCRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC unary calls",
		}, []string{"method", "code"}),
	}
}

// RecordRunStart records a new orchestration run starting.
func (m *Metrics) RecordRunStart() {
	m.RunsTotal.Inc()
	m.RunsActive.Inc()
}

// RecordRunEnd records a run reaching completed, error or cancelled.
func (m *Metrics) RecordRunEnd(outcome string, durationSeconds float64) {
	m.RunsActive.Dec()
	m.RunDuration.Observe(durationSeconds)
	m.RunOutcomes.WithLabelValues(outcome).Inc()
}

// RecordPoll records one status poll.
func (m *Metrics) RecordPoll() {
	m.PollIterations.Inc()
}

// RecordProviderCall records a single provider call attempt.
func (m *Metrics) RecordProviderCall(operation string, errorType string, latencySeconds float64) {
	m.ProviderRequests.WithLabelValues(operation).Inc()
	m.ProviderLatency.WithLabelValues(operation).Observe(latencySeconds)
	if errorType != "" {
		m.ProviderErrors.WithLabelValues(operation, errorType).Inc()
	}
}

// RecordProviderRetry records a retry of a provider call.
func (m *Metrics) RecordProviderRetry(operation string) {
	m.ProviderRetries.WithLabelValues(operation).Inc()
}

// RecordUpload records audio bytes sent to the provider.
func (m *Metrics) RecordUpload(bytes int) {
	m.AudioBytesUploaded.Add(float64(bytes))
}

// RecordValidationFailure records a rejected upload at the given layer.
func (m *Metrics) RecordValidationFailure(layer string) {
	m.ValidationFailures.WithLabelValues(layer).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, code string, latencySeconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, code).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(latencySeconds)
}

// RecordWebSocketOpen records a progress subscriber connecting.
func (m *Metrics) RecordWebSocketOpen() {
	m.WebSocketsActive.Inc()
}

// RecordWebSocketClose records a progress subscriber disconnecting.
func (m *Metrics) RecordWebSocketClose() {
	m.WebSocketsActive.Dec()
}

// RecordGRPCRequest records a gRPC unary call.
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
}
