package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "batchrec"

// Outcome labels for recorded versions.
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Audit holds the collectors of the audit subsystem.
type Audit struct {
	// VersionsRecorded counts RecordVersion calls.
	// Labels: outcome (success, conflict, invalid, error)
	VersionsRecorded *prometheus.CounterVec

	// VersionConflicts counts unique-constraint collisions seen by the writer,
	// including the ones resolved by a retry.
	VersionConflicts prometheus.Counter

	// QueryDuration measures read operations.
	// Labels: operation (history, audit_log, audit_entry, compare, export)
	QueryDuration *prometheus.HistogramVec

	// IdentityLookupFailures counts best-effort user lookups that failed.
	IdentityLookupFailures prometheus.Counter
}

// NewAudit registers the audit collectors on reg. Passing a fresh registry
// keeps tests isolated from the process-wide default.
func NewAudit(reg prometheus.Registerer) *Audit {
	factory := promauto.With(reg)
	return &Audit{
		VersionsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "versions_recorded_total",
			Help:      "Field snapshot writes by outcome",
		}, []string{"outcome"}),
		VersionConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "version_conflicts_total",
			Help:      "Concurrent version conflicts observed by the writer",
		}),
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "query_duration_seconds",
			Help:      "Audit read latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
		IdentityLookupFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "identity_lookup_failures_total",
			Help:      "User directory lookups that degraded to unknown users",
		}),
	}
}
