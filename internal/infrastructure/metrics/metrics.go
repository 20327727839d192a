package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline server metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ventureforge",
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Chat outcomes
	ChatCompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ventureforge",
			Subsystem: "pipeline",
			Name:      "chat_completions_total",
			Help:      "Total chat completions by cache status and outcome",
		},
		[]string{"cache_status", "outcome"},
	)

	EnvelopeDecodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ventureforge",
			Subsystem: "pipeline",
			Name:      "envelope_decodes_total",
			Help:      "Total model response envelope decode attempts",
		},
		[]string{"result"},
	)

	ArtifactTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ventureforge",
			Subsystem: "pipeline",
			Name:      "artifact_transitions_total",
			Help:      "Total artifact lifecycle transitions",
		},
		[]string{"stage", "transition"},
	)

	RateLimitRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ventureforge",
			Subsystem: "pipeline",
			Name:      "rate_limit_rejections_total",
			Help:      "Total requests rejected by the rate limiter",
		},
	)

	UpstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ventureforge",
			Subsystem: "pipeline",
			Name:      "upstream_errors_total",
			Help:      "Total upstream completion call failures",
		},
		[]string{"error_type"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ventureforge",
			Subsystem: "pipeline",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "endpoint"},
	)

	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ventureforge",
			Subsystem: "pipeline",
			Name:      "stream_duration_seconds",
			Help:      "Upstream stream duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"cache_status"},
	)
)

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
