// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	RerankRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_rerank_requests_total",
			Help: "Rerank calls partitioned by whether the reranker flag was on",
		},
		[]string{"state"},
	)

	RerankDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "search_rerank_duration_seconds",
			Help:    "Time spent scoring and sorting candidates",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	FeatureFlagErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feature_flag_lookup_errors_total",
			Help: "Flag lookups that failed or timed out and were treated as disabled",
		},
		[]string{"flag"},
	)

	ModerationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_decisions_total",
			Help: "Moderation outcomes by submission type and decision",
		},
		[]string{"submission_type", "decision"},
	)

	ListingReviews = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_reviews_total",
			Help: "Admin review actions applied to listings",
		},
		[]string{"action"},
	)
)
