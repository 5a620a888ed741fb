// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts inbound HTTP requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgbridge_http_requests_total",
			Help: "Total number of inbound HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures inbound request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tgbridge_http_request_duration_seconds",
			Help:    "Inbound HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SubmissionsTotal counts accepted submissions by mode (async, sync, schedule).
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgbridge_submissions_total",
			Help: "Submissions received, by mode and validation result",
		},
		[]string{"mode", "result"},
	)

	// OutcomesTotal counts terminal request states.
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgbridge_outcomes_total",
			Help: "Terminal request outcomes by status",
		},
		[]string{"status"},
	)

	// PipelineDuration measures prompt resolution through persistence.
	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tgbridge_pipeline_duration_seconds",
			Help:    "Time spent processing one request",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		},
	)

	// TasksInFlight tracks background tasks currently running.
	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tgbridge_tasks_in_flight",
			Help: "Background pipeline tasks currently running",
		},
	)

	// LLMRequestDuration measures calls to the completion endpoint.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tgbridge_llm_request_duration_seconds",
			Help:    "LLM chat completion call duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		},
		[]string{"model", "result"},
	)

	// LLMCompatRetries counts max_tokens -> max_completion_tokens retries.
	LLMCompatRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tgbridge_llm_compat_retries_total",
			Help: "LLM calls retried with max_completion_tokens",
		},
	)

	// TelegramMessagesTotal counts Bot API calls by method and result.
	TelegramMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgbridge_telegram_calls_total",
			Help: "Telegram Bot API calls by method and result",
		},
		[]string{"method", "result"},
	)

	// FallbackNoticesTotal counts best-effort fallback notices.
	FallbackNoticesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgbridge_fallback_notices_total",
			Help: "Fallback notices attempted, by result",
		},
		[]string{"result"},
	)
)

// Result maps an error to a "ok"/"error" label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
