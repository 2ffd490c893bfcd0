// Package metrics provides Prometheus metrics for repofeed.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationsTotal counts generation passes by outcome (ready, error, busy).
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repofeed",
			Name:      "generations_total",
			Help:      "Total number of feed generation passes",
		},
		[]string{"outcome"},
	)

	// GenerationDuration measures a full generation pass.
	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "repofeed",
			Name:      "generation_duration_seconds",
			Help:      "Duration of feed generation passes in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// FeedsTotal counts per-feed-type results of a generation pass.
	FeedsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repofeed",
			Name:      "feeds_total",
			Help:      "Total number of feed documents processed",
		},
		[]string{"feed_type", "stage", "status"},
	)

	// GitHubRequestsTotal counts GitHub API responses by status code.
	GitHubRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repofeed",
			Name:      "github_requests_total",
			Help:      "Total number of GitHub API requests",
		},
		[]string{"endpoint", "code"},
	)

	// QueueDepth tracks jobs waiting for a worker.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "repofeed",
			Name:      "queue_depth",
			Help:      "Number of generation jobs waiting in the queue",
		},
	)
)

// RecordGeneration records the outcome of a generation pass.
func RecordGeneration(outcome string, seconds float64) {
	GenerationsTotal.WithLabelValues(outcome).Inc()
	GenerationDuration.Observe(seconds)
}

// RecordFeed records the result of one stage (fetch, publish) for a feed type.
func RecordFeed(feedType, stage string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	FeedsTotal.WithLabelValues(feedType, stage, status).Inc()
}

// RecordGitHubRequest records a GitHub API response. code is 0 on transport errors.
func RecordGitHubRequest(endpoint string, code int) {
	GitHubRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}
