package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequests counts incoming webhooks, labeled by status.
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_webhook_requests_total",
		Help: "The total number of received webhook requests",
	}, []string{"event", "status"}) // status: accepted, dropped, invalid, ignored

	// ReviewsTotal counts finished review pipelines, labeled by outcome.
	ReviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_reviews_total",
		Help: "The total number of completed AI review pipelines",
	}, []string{"result"}) // result: completed, failed

	// ReviewDuration measures the end-to-end review pipeline time.
	ReviewDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hub_review_duration_seconds",
		Help:    "Time taken to run a review pipeline",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	// ReviewScore tracks the distribution of AI scores.
	ReviewScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hub_review_score",
		Help:    "Distribution of AI review scores",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	// CommentPostFailures counts failed comment posts to GitHub.
	CommentPostFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_comment_post_failures_total",
		Help: "Total number of failed comment posts to GitHub",
	}, []string{"reason"})

	// GithubAPIErrors counts failed GitHub API calls by HTTP status; a
	// status of "network" means no response was received at all.
	GithubAPIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_github_api_errors_total",
		Help: "Total number of failed GitHub API calls",
	}, []string{"status"})

	// SyncRuns counts repository sync passes, labeled by outcome.
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_sync_runs_total",
		Help: "Total number of repository sync passes",
	}, []string{"status"}) // status: success, error

	// QueueDepth reports the number of review jobs waiting to run.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_review_queue_depth",
		Help: "Number of review jobs waiting in the worker queue",
	})
)
