// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_runs_total",
			Help: "Orchestration runs by outcome (ok, degraded, errored, rejected)",
		},
		[]string{"outcome"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "advisor_run_duration_seconds",
			Help:    "End to end orchestration latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
	)

	ModuleCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_module_calls_total",
			Help: "Advisory module calls by module and status",
		},
		[]string{"module", "status"},
	)

	ModuleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "advisor_module_duration_seconds",
			Help: "Advisory module call latency",
		},
		[]string{"module"},
	)

	RetrievalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_retrieval_total",
			Help: "Evidence retrievals by backend and whether the lexical fallback served them",
		},
		[]string{"backend", "degraded"},
	)

	IntentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_intent_total",
			Help: "Intent decisions by method",
		},
		[]string{"method"},
	)

	ValidatorFlags = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_validator_flags_total",
			Help: "Validator interventions by flag",
		},
		[]string{"flag"},
	)

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
)
