// Package telemetry provides the process-wide metrics registry and the
// OpenTelemetry tracing setup for the pipeline.
//
// Metric names are part of the external contract and never change:
// dashboards and alerts key on them. The registry is initialized once at
// startup and accessed through a handle; tests reset it with Reset().
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the handle to every pipeline metric. One instance per process
// under normal operation; tests create or reset their own.
type Metrics struct {
	registry *prometheus.Registry

	// Producer
	TasksSent        *prometheus.CounterVec
	TaskSendDuration *prometheus.HistogramVec

	// Consumer
	TasksProcessed     *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	QueueWaitTime      *prometheus.GaugeVec
	ParseErrors        *prometheus.CounterVec

	// Prediction
	Predictions       *prometheus.CounterVec
	PredictionLatency *prometheus.HistogramVec
	ModelReady        *prometheus.GaugeVec
}

// NewMetrics creates a fresh registry with every pipeline metric
// registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		TasksSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "producer_tasks_sent_total",
			Help: "Tasks published to the broker.",
		}, []string{"task_type", "queue_name"}),

		TaskSendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "producer_task_send_duration_seconds",
			Help:    "End-to-end publish duration including prediction.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task_type"}),

		TasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consumer_tasks_processed_total",
			Help: "Deliveries handled, by terminal status.",
		}, []string{"task_type", "queue_name", "status"}),

		ProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consumer_task_processing_duration_seconds",
			Help:    "Handler execution duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task_type"}),

		QueueWaitTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "consumer_queue_wait_time_seconds",
			Help: "Time the most recent delivery spent queued.",
		}, []string{"queue_name"}),

		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consumer_parse_errors_total",
			Help: "Deliveries dropped because the body failed to parse.",
		}, []string{"queue_name"}),

		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_predictions_total",
			Help: "Prediction calls, by backend, request type and outcome.",
		}, []string{"backend", "type", "status"}),

		PredictionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ai_prediction_latency_seconds",
			Help:    "Prediction call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),

		ModelReady: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ai_model_ready",
			Help: "1 when the named model is loaded and serving.",
		}, []string{"model"}),
	}

	reg.MustRegister(
		m.TasksSent,
		m.TaskSendDuration,
		m.TasksProcessed,
		m.ProcessingDuration,
		m.QueueWaitTime,
		m.ParseErrors,
		m.Predictions,
		m.PredictionLatency,
		m.ModelReady,
	)

	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests that gather metric
// families directly.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

var (
	defaultMetrics   *Metrics
	defaultMetricsMu sync.Mutex
)

// Default returns the process-wide metrics handle, creating it on first
// use. This is the single source of truth: no component registers metrics
// anywhere else.
func Default() *Metrics {
	defaultMetricsMu.Lock()
	defer defaultMetricsMu.Unlock()
	if defaultMetrics == nil {
		defaultMetrics = NewMetrics()
	}
	return defaultMetrics
}

// Reset replaces the process-wide handle with a fresh registry. For tests.
func Reset() *Metrics {
	defaultMetricsMu.Lock()
	defer defaultMetricsMu.Unlock()
	defaultMetrics = NewMetrics()
	return defaultMetrics
}
