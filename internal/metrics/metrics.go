// Package metrics registers the governance Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authzDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lakegov_authz_denials_total",
		Help: "Role checks that failed, by permission",
	}, []string{"permission"})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lakegov_table_transitions_total",
		Help: "Committed table lifecycle transitions",
	}, []string{"from", "to"})

	casConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lakegov_cas_conflicts_total",
		Help: "Compare-and-swap attempts that lost a race, by entity kind",
	}, []string{"entity"})

	driftReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lakegov_drift_reports_total",
		Help: "Stored drift reports by severity",
	}, []string{"severity"})

	joinValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lakegov_join_validations_total",
		Help: "Join validations by outcome",
	}, []string{"outcome"})

	ingestedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lakegov_ingested_rows_total",
		Help: "Rows processed by replay and backfill, by result",
	}, []string{"result"})

	resolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lakegov_resolve_duration_seconds",
		Help:    "Duration of table resolution requests",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})
)

// AuthzDenied counts a failed role check.
func AuthzDenied(permission string) {
	authzDenials.WithLabelValues(permission).Inc()
}

// TableTransition counts a committed lifecycle edge.
func TableTransition(from, to string) {
	transitions.WithLabelValues(from, to).Inc()
}

// CASConflict counts a lost compare-and-swap on the given entity kind.
func CASConflict(entity string) {
	casConflicts.WithLabelValues(entity).Inc()
}

// DriftReport counts a stored drift report.
func DriftReport(severity string) {
	driftReports.WithLabelValues(severity).Inc()
}

// JoinValidation counts a join validation outcome ("passed" or the failing check).
func JoinValidation(outcome string) {
	joinValidations.WithLabelValues(outcome).Inc()
}

// IngestedRows adds replay or backfill row counts.
func IngestedRows(applied, updated, duplicates int64) {
	ingestedRows.WithLabelValues("applied").Add(float64(applied))
	ingestedRows.WithLabelValues("updated").Add(float64(updated))
	ingestedRows.WithLabelValues("duplicate").Add(float64(duplicates))
}

// ObserveResolve records how long a resolution took.
func ObserveResolve(start time.Time) {
	resolveDuration.Observe(time.Since(start).Seconds())
}
