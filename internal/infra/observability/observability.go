// Package observability holds the Prometheus metrics for the predictor
// pipeline: event dispatch, forecast writes, the two daily jobs, on-demand
// refreshes, and habit resolver degradations.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Dispatcher Metrics ─────────────────────────────────────────────────────

// EventsDispatched counts processed inventory log events by resolved kind.
var EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pantryd",
	Subsystem: "dispatcher",
	Name:      "events_total",
	Help:      "Inventory log events dispatched, by resolved event kind.",
}, []string{"kind"})

// DispatchFailures counts log events whose processing failed.
var DispatchFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "pantryd",
	Subsystem: "dispatcher",
	Name:      "failures_total",
	Help:      "Inventory log events that failed to dispatch.",
})

// ForecastsWritten counts forecast snapshots appended, by trigger.
var ForecastsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pantryd",
	Subsystem: "forecasts",
	Name:      "written_total",
	Help:      "Forecast snapshots written, by trigger.",
}, []string{"trigger"})

// ─── Scheduler Metrics ──────────────────────────────────────────────────────

// SchedulerRuns counts completed runs of the daily jobs.
var SchedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pantryd",
	Subsystem: "scheduler",
	Name:      "runs_total",
	Help:      "Completed daily job runs, by job.",
}, []string{"job"})

// SchedulerProductFailures counts per-product failures inside a job run.
var SchedulerProductFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pantryd",
	Subsystem: "scheduler",
	Name:      "product_failures_total",
	Help:      "Per-product failures inside daily job runs, by job.",
}, []string{"job"})

// SchedulerRunDuration observes wall time of each job run.
var SchedulerRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "pantryd",
	Subsystem: "scheduler",
	Name:      "run_duration_seconds",
	Help:      "Wall-clock duration of daily job runs.",
	Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
}, []string{"job"})

// ─── Refresh Metrics ────────────────────────────────────────────────────────

// RefreshRuns counts on-demand forecast refreshes, by reason.
var RefreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pantryd",
	Subsystem: "refresh",
	Name:      "runs_total",
	Help:      "On-demand forecast refreshes, by reason.",
}, []string{"reason"})

// RefreshProductFailures counts isolated per-product refresh failures.
var RefreshProductFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "pantryd",
	Subsystem: "refresh",
	Name:      "product_failures_total",
	Help:      "Per-product failures during forecast refreshes.",
})

// ─── Habit Metrics ──────────────────────────────────────────────────────────

// HabitDegradations counts times the habit resolver fell back to 1.0
// because the store was unavailable.
var HabitDegradations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "pantryd",
	Subsystem: "habits",
	Name:      "multiplier_degradations_total",
	Help:      "Habit multiplier lookups degraded to 1.0 by store errors.",
})
