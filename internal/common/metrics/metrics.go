package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_handled_total",
			Help: "Total number of jobs handled by worker, failed or not",
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

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	ClaimsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claims_processed_total",
			Help: "Claims processed, by outcome",
		},
		[]string{"outcome"},
	)

	ClaimStageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claim_stage_failures_total",
			Help: "Terminal claim failures, by stage and error code",
		},
		[]string{"stage", "error_code"},
	)

	ClaimStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "claim_stage_duration_seconds",
			Help:    "Duration of each claim pipeline stage in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	WeatherFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_fallback_total",
			Help: "Claims assessed on the fallback observation, by reason",
		},
		[]string{"reason"},
	)

	PayoutsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payouts_issued_total",
			Help: "Payout transactions confirmed on the ledger",
		},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claim_notifications_total",
			Help: "Claim notifications, by channel and status",
		},
		[]string{"channel", "status"},
	)
)
