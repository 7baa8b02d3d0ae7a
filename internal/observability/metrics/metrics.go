package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fixlane",
		Subsystem: "gateway",
		Name:      "webhook_events_total",
		Help:      "Inbound gateway webhook notifications by event type and outcome.",
	}, []string{"event", "outcome"})

	schedulerJobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fixlane",
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Policy job invocations.",
	}, []string{"job"})

	schedulerJobErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fixlane",
		Subsystem: "scheduler",
		Name:      "job_errors_total",
		Help:      "Policy job invocations that returned an error.",
	}, []string{"job"})

	schedulerJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fixlane",
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Policy job wall time.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})

	schedulerActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fixlane",
		Subsystem: "scheduler",
		Name:      "job_actions_total",
		Help:      "Compensating actions applied by policy jobs.",
	}, []string{"job", "action"})
)

func IncWebhookEvent(event, outcome string) {
	webhookEvents.WithLabelValues(event, outcome).Inc()
}

func IncJobRun(job string) {
	schedulerJobRuns.WithLabelValues(job).Inc()
}

func IncJobError(job string) {
	schedulerJobErrors.WithLabelValues(job).Inc()
}

func ObserveJobDuration(job string, seconds float64) {
	schedulerJobDuration.WithLabelValues(job).Observe(seconds)
}

func IncJobAction(job, action string) {
	schedulerActions.WithLabelValues(job, action).Inc()
}
