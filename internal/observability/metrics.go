// Package observability exposes Prometheus instrumentation for the story
// pipeline.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters and timings.
type Metrics struct {
	registry *prometheus.Registry

	JobsStarted   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	PagesSkipped  prometheus.Counter
	StageDuration *prometheus.HistogramVec
}

// NewMetrics registers the pipeline metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		JobsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "storybook_jobs_started_total",
			Help: "Story jobs accepted for pipeline processing.",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "storybook_jobs_completed_total",
			Help: "Story jobs that reached the completed state.",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "storybook_jobs_failed_total",
			Help: "Story jobs that reached the failed state.",
		}),
		PagesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "storybook_pages_unillustrated_total",
			Help: "Pages left without an illustration after retries were exhausted.",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storybook_stage_duration_seconds",
			Help:    "Wall-clock duration of each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"stage"}),
	}
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
