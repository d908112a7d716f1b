package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle-level metrics exposed on /metrics by the API process and pushed to
// the default registry by the worker.
var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodlesync_runs_total",
		Help: "Reconciliation cycles by result.",
	}, []string{"result"})

	SessionsSeen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moodlesync_sessions_total",
		Help: "Unprocessed sessions examined across all cycles.",
	})

	RegistrationsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moodlesync_registrations_updated_total",
		Help: "Attendance registrations the sink reported updated.",
	})

	ErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moodlesync_errors_total",
		Help: "Diagnostics collected across all cycles.",
	})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "moodlesync_run_duration_seconds",
		Help:    "Wall-clock duration of a reconciliation cycle.",
		Buckets: prometheus.DefBuckets,
	})
)
