// Package metrics holds the Prometheus collectors of the reconciliation
// engine and pushes them to a Pushgateway for batch runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "controls"

// Check results, as recorded by the check runner.
const (
	CheckOK      = "ok"
	CheckFailed  = "failed"
	CheckInvalid = "invalid"
)

// Delta classes.
const (
	ClassChanged   = "changed"
	ClassNew       = "new"
	ClassStale     = "stale"
	ClassUnchanged = "unchanged"
)

// Write operations.
const (
	OpUpdate = "update"
	OpInsert = "insert"
	OpDelete = "delete"
)

var (
	// ChecksRunTotal counts check invocations.
	// Labels: result (ok, failed, invalid)
	ChecksRunTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checks_run_total",
		Help:      "Total check invocations by result",
	}, []string{"result"})

	// ResultRowsTotal counts validated result rows produced by checks.
	ResultRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "result_rows_total",
		Help:      "Total result rows produced by checks",
	})

	// DeltaRowsTotal counts reconciled rows by delta class.
	// Labels: class (changed, new, stale, unchanged)
	DeltaRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delta_rows_total",
		Help:      "Total reconciled rows by delta class",
	}, []string{"class"})

	// WrittenRowsTotal counts rows affected by emitted statements.
	// Labels: op (update, insert, delete)
	WrittenRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "written_rows_total",
		Help:      "Total rows affected by emitted statements",
	}, []string{"op"})

	// PersistedReadFailuresTotal counts persisted reads on the insert path
	// that failed and were treated as an empty table.
	PersistedReadFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "persisted_read_failures_total",
		Help:      "Persisted outcome reads treated as empty after a failure",
	})

	// RunDuration measures engine entry points.
	// Labels: entry (execute, insert, plan), status (success, error)
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Engine run latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"entry", "status"})
)

// Status returns the status label for an entry point outcome.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
