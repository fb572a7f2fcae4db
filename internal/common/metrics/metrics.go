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

	ApplicationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetting_application_transitions_total",
			Help: "Application status transitions",
		},
		[]string{"from", "to"},
	)

	ReviewerAssignments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetting_reviewer_assignments_total",
			Help: "Reviewer selections by outcome (selected, fallback, none)",
		},
		[]string{"outcome"},
	)

	ReferenceActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetting_reference_actions_total",
			Help: "Reference workflow actions taken by the scheduler",
		},
		[]string{"action"},
	)

	BulkItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetting_bulk_items_total",
			Help: "Bulk operation item outcomes",
		},
		[]string{"operation_type", "outcome"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetting_notifications_total",
			Help: "Notification delivery attempts by result",
		},
		[]string{"template", "result"},
	)

	AuditDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vetting_audit_dropped_total",
			Help: "Audit entries dropped because the buffer was full or the sink failed",
		},
	)

	SchedulerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "vetting_scheduler_job_duration_seconds",
			Help: "Duration of periodic scheduler jobs",
		},
		[]string{"job"},
	)

	SchedulerJobErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetting_scheduler_job_errors_total",
			Help: "Periodic scheduler job failures",
		},
		[]string{"job"},
	)
)
