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

	// LLMRequestDuration tracks LLM completion duration.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM completion request duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"provider", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"provider", "direction"},
	)

	// AnalysesTotal tracks thread analyses by outcome.
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thread_analyses_total",
			Help: "Thread analyses by outcome",
		},
		[]string{"outcome"},
	)

	// ThreadFetchesTotal tracks conversation fetches by the strategy that
	// ultimately produced messages.
	ThreadFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thread_fetches_total",
			Help: "Conversation fetches by winning strategy",
		},
		[]string{"strategy"},
	)

	// TicketsTotal tracks tracker issue creation attempts.
	TicketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_total",
			Help: "Tracker issue creation attempts",
		},
		[]string{"status"},
	)

	// TicketLinkFailures tracks best-effort linking steps that failed after
	// the issue itself was created.
	TicketLinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_link_failures_total",
			Help: "Best-effort ticket linking failures",
		},
		[]string{"step"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMRequest records metrics for an LLM completion.
func RecordLLMRequest(provider, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(provider, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(provider, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(provider, "out").Add(float64(tokensOut))
}
