// api/telemetry/metrics.go
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EvaluationsTotal counts policy evaluations by outcome (matched, default)
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "evaluations_total",
			Help:      "Total number of policy evaluations",
		},
		[]string{"outcome"},
	)

	// DecisionsTotal counts decisions by resulting action
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "decisions_total",
			Help:      "Total number of decisions by action",
		},
		[]string{"action"},
	)

	// EvaluationAnomalies counts malformed conditions hit at evaluation time
	EvaluationAnomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "evaluation_anomalies_total",
			Help:      "Total number of malformed conditions skipped during evaluation",
		},
		[]string{"condition_type"},
	)

	// DirectivesApplied counts directives pushed to the enforcement chain
	DirectivesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "directives_applied_total",
			Help:      "Total number of enforcement directives applied",
		},
		[]string{"action"},
	)

	// DirectiveFailures counts directives the enforcement primitive rejected
	DirectiveFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "directive_failures_total",
			Help:      "Total number of enforcement directives that failed after retries",
		},
		[]string{"action"},
	)

	// EventsConsumed counts external events by type
	EventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "events_consumed_total",
			Help:      "Total number of external events consumed",
		},
		[]string{"type"},
	)

	// TrustRecalculations counts full trust recomputations
	TrustRecalculations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "trust_recalculations_total",
			Help:      "Total number of full trust score recalculations",
		},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry
// This function is idempotent and can be called multiple times safely
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(EvaluationsTotal)
		prometheus.DefaultRegisterer.Register(DecisionsTotal)
		prometheus.DefaultRegisterer.Register(EvaluationAnomalies)
		prometheus.DefaultRegisterer.Register(DirectivesApplied)
		prometheus.DefaultRegisterer.Register(DirectiveFailures)
		prometheus.DefaultRegisterer.Register(EventsConsumed)
		prometheus.DefaultRegisterer.Register(TrustRecalculations)
	})
}
