package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Routing decisions and their complexity/path distribution
//   - Local inference pool handle lifecycle and queueing
//   - Cloud adapter request latency, cost, and token usage
//   - Confidence scoring outcomes and plan-step execution
//   - Tool executions and the request lifecycle as a whole
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RouteDecided("complex", "code")
//	defer metrics.CloudRequestDuration("anthropic", "claude-3-opus").Observe(time.Since(start).Seconds())
type Metrics struct {
	// RouteCounter tracks routing decisions by path and specialty.
	// Labels: path (simple|specialized|complex), specialty
	RouteCounter *prometheus.CounterVec

	// RouteClassifierFailures counts classifier errors that fell back to
	// the heuristic router.
	// Labels: reason
	RouteClassifierFailures *prometheus.CounterVec

	// RouteComplexityScore observes the heuristic complexity score assigned
	// to a prompt.
	RouteComplexityScore prometheus.Histogram

	// InferenceHandleLoads counts local model handle creations.
	// Labels: model, status (success|timeout|error)
	InferenceHandleLoads *prometheus.CounterVec

	// InferenceHandleLoadDuration measures handle load latency in seconds.
	// Labels: model
	InferenceHandleLoadDuration *prometheus.HistogramVec

	// InferenceActiveHandles is a gauge tracking currently loaded handles.
	InferenceActiveHandles prometheus.Gauge

	// InferenceQueueDepth tracks requests waiting on the worker semaphore.
	InferenceQueueDepth prometheus.Gauge

	// InferenceGenerateDuration measures local generation latency in seconds.
	// Labels: model
	InferenceGenerateDuration *prometheus.HistogramVec

	// CloudRequestCounter counts cloud requests by provider, model, and status.
	// Labels: provider, model, status (success|error)
	CloudRequestCounter *prometheus.CounterVec

	// CloudRequestDuration measures cloud API call latency in seconds.
	// Labels: provider, model
	CloudRequestDurationVec *prometheus.HistogramVec

	// CloudTokensUsed tracks token consumption by provider, model, and type.
	// Labels: provider, model, type (prompt|completion)
	CloudTokensUsed *prometheus.CounterVec

	// CloudCostMicroUSD tracks estimated cost in micro-USD.
	// Labels: provider, model
	CloudCostMicroUSD *prometheus.CounterVec

	// ConfidenceScore observes the overall confidence score assigned to an
	// output.
	// Labels: recommendation (accept|retry|escalate)
	ConfidenceScore *prometheus.HistogramVec

	// ConfidenceDegraded counts validations that fell back to the degraded
	// neutral report because the scorer itself failed.
	ConfidenceDegraded prometheus.Counter

	// PlanStepCounter counts plan step executions by kind and outcome.
	// Labels: kind (tool_call|model_generate|confidence_check|aggregate), status (success|error|retried)
	PlanStepCounter *prometheus.CounterVec

	// PlanStepDuration measures plan step execution latency in seconds.
	// Labels: kind
	PlanStepDuration *prometheus.HistogramVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|denied|timeout|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by component and error kind.
	// Labels: component, kind
	ErrorCounter *prometheus.CounterVec

	// RequestDuration measures end-to-end request latency in seconds, from
	// Handler.Stream entry to the terminal event.
	// Labels: path, status (success|error)
	RequestDuration *prometheus.HistogramVec

	// RequestsInFlight is a gauge tracking currently executing requests.
	RequestsInFlight prometheus.Gauge

	// TelemetryBufferDepth tracks the Telemetry Sink's in-memory buffer
	// depth at the time of the last flush.
	TelemetryBufferDepth prometheus.Gauge

	// TelemetryFlushFailures counts repository write failures during a
	// Telemetry Sink flush.
	TelemetryFlushFailures prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and will be available at the /metrics endpoint when using prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		RouteCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lalocore_routing_decisions_total",
				Help: "Total number of routing decisions by path and specialty",
			},
			[]string{"path", "specialty"},
		),

		RouteClassifierFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lalocore_routing_classifier_failures_total",
				Help: "Total number of classifier failures that fell back to the heuristic router",
			},
			[]string{"reason"},
		),

		RouteComplexityScore: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lalocore_routing_complexity_score",
				Help:    "Heuristic complexity score assigned to a prompt",
				Buckets: []float64{0, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
		),

		InferenceHandleLoads: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lalocore_inference_handle_loads_total",
				Help: "Total number of local model handle load attempts by model and status",
			},
			[]string{"model", "status"},
		),

		InferenceHandleLoadDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lalocore_inference_handle_load_duration_seconds",
				Help:    "Duration of local model handle loads in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),

		InferenceActiveHandles: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lalocore_inference_active_handles",
				Help: "Current number of loaded local model handles",
			},
		),

		InferenceQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lalocore_inference_queue_depth",
				Help: "Current number of requests waiting on the local inference worker semaphore",
			},
		),

		InferenceGenerateDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lalocore_inference_generate_duration_seconds",
				Help:    "Duration of local generation calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),

		CloudRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lalocore_cloud_requests_total",
				Help: "Total number of cloud requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		CloudRequestDurationVec: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lalocore_cloud_request_duration_seconds",
				Help:    "Duration of cloud API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		CloudTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lalocore_cloud_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		CloudCostMicroUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lalocore_cloud_cost_micro_usd_total",
				Help: "Estimated cloud API cost in micro-USD",
			},
			[]string{"provider", "model"},
		),

		ConfidenceScore: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lalocore_confidence_score",
				Help:    "Overall confidence score assigned to an output by recommendation",
				Buckets: []float64{0, 0.2, 0.4, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
			[]string{"recommendation"},
		),

		ConfidenceDegraded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lalocore_confidence_degraded_total",
				Help: "Total number of confidence validations that fell back to the degraded neutral report",
			},
		),

		PlanStepCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lalocore_plan_step_total",
				Help: "Total number of plan step executions by kind and status",
			},
			[]string{"kind", "status"},
		),

		PlanStepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lalocore_plan_step_duration_seconds",
				Help:    "Duration of plan step execution in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lalocore_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lalocore_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lalocore_errors_total",
				Help: "Total number of errors by component and error kind",
			},
			[]string{"component", "kind"},
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lalocore_request_duration_seconds",
				Help:    "End-to-end request duration in seconds by path and status",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"path", "status"},
		),

		RequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lalocore_requests_in_flight",
				Help: "Current number of requests being executed",
			},
		),

		TelemetryBufferDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lalocore_telemetry_buffer_depth",
				Help: "Depth of the Telemetry Sink in-memory buffer at the last flush",
			},
		),

		TelemetryFlushFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lalocore_telemetry_flush_failures_total",
				Help: "Total number of Telemetry Sink repository write failures during flush",
			},
		),
	}
}

// RouteDecided records a routing decision.
//
// Example:
//
//	metrics.RouteDecided("complex", "code")
func (m *Metrics) RouteDecided(path, specialty string) {
	m.RouteCounter.WithLabelValues(path, specialty).Inc()
}

// RouteClassifierFailed records a classifier failure that fell back to the
// heuristic router.
func (m *Metrics) RouteClassifierFailed(reason string) {
	m.RouteClassifierFailures.WithLabelValues(reason).Inc()
}

// RouteComplexity observes the heuristic complexity score for a prompt.
func (m *Metrics) RouteComplexity(score float64) {
	m.RouteComplexityScore.Observe(score)
}

// RecordHandleLoad records a local model handle load attempt.
//
// Example:
//
//	start := time.Now()
//	// ... load handle ...
//	metrics.RecordHandleLoad("llama-3-8b", "success", time.Since(start).Seconds())
func (m *Metrics) RecordHandleLoad(model, status string, durationSeconds float64) {
	m.InferenceHandleLoads.WithLabelValues(model, status).Inc()
	m.InferenceHandleLoadDuration.WithLabelValues(model).Observe(durationSeconds)
}

// SetActiveHandles sets the current number of loaded local model handles.
func (m *Metrics) SetActiveHandles(n int) {
	m.InferenceActiveHandles.Set(float64(n))
}

// SetInferenceQueueDepth sets the current worker semaphore queue depth.
func (m *Metrics) SetInferenceQueueDepth(n int) {
	m.InferenceQueueDepth.Set(float64(n))
}

// RecordInferenceGenerate records a local generation call's duration.
func (m *Metrics) RecordInferenceGenerate(model string, durationSeconds float64) {
	m.InferenceGenerateDuration.WithLabelValues(model).Observe(durationSeconds)
}

// RecordCloudRequest records metrics for a cloud API request.
//
// Example:
//
//	start := time.Now()
//	// ... make cloud request ...
//	metrics.RecordCloudRequest("anthropic", "claude-3-opus", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordCloudRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.CloudRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.CloudRequestDurationVec.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.CloudTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.CloudTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordCloudCost records estimated cloud API cost in micro-USD.
func (m *Metrics) RecordCloudCost(provider, model string, costMicroUSD int64) {
	m.CloudCostMicroUSD.WithLabelValues(provider, model).Add(float64(costMicroUSD))
}

// RecordConfidence records a confidence report's overall score by the
// recommendation it produced.
func (m *Metrics) RecordConfidence(recommendation string, overall float64) {
	m.ConfidenceScore.WithLabelValues(recommendation).Observe(overall)
}

// RecordConfidenceDegraded increments the degraded-report counter.
func (m *Metrics) RecordConfidenceDegraded() {
	m.ConfidenceDegraded.Inc()
}

// RecordPlanStep records a plan step execution.
//
// Example:
//
//	start := time.Now()
//	// ... run step ...
//	metrics.RecordPlanStep("model_generate", "success", time.Since(start).Seconds())
func (m *Metrics) RecordPlanStep(kind, status string, durationSeconds float64) {
	m.PlanStepCounter.WithLabelValues(kind, status).Inc()
	m.PlanStepDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordToolExecution records metrics for a tool execution.
//
// Example:
//
//	start := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("web_search", "success", time.Since(start).Seconds())
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordError increments the error counter for a given component and kind.
//
// Example:
//
//	metrics.RecordError("router", "classifier_timeout")
//	metrics.RecordError("cloud", "rate_limited")
func (m *Metrics) RecordError(component, kind string) {
	m.ErrorCounter.WithLabelValues(component, kind).Inc()
}

// RequestStarted increments the in-flight requests gauge.
func (m *Metrics) RequestStarted() {
	m.RequestsInFlight.Inc()
}

// RequestFinished decrements the in-flight requests gauge and records total
// request duration.
func (m *Metrics) RequestFinished(path, status string, durationSeconds float64) {
	m.RequestsInFlight.Dec()
	m.RequestDuration.WithLabelValues(path, status).Observe(durationSeconds)
}

// SetTelemetryBufferDepth sets the Telemetry Sink's buffer depth gauge.
func (m *Metrics) SetTelemetryBufferDepth(depth int) {
	m.TelemetryBufferDepth.Set(float64(depth))
}

// RecordTelemetryFlushFailure increments the Telemetry Sink flush failure
// counter.
func (m *Metrics) RecordTelemetryFlushFailure() {
	m.TelemetryFlushFailures.Inc()
}
