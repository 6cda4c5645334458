package coordinator

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the Pipeline Coordinator (spec.md §6 component K
// "Telemetry"): how often extractors actually run, how often a trigger finds
// the scope's lock already held (spec.md §4.H "coalescing"), and how many
// worker-pool slots are in use per tenant.
var (
	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_coordinator_runs_total",
		Help: "Total extractor/aggregator/evaluator task runs executed by the Pipeline Coordinator.",
	}, []string{"scope_kind"})

	coalescedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_coordinator_coalesced_total",
		Help: "Triggers that found scope's lock already held and coalesced onto the in-flight run.",
	}, []string{"scope_kind"})

	queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pulse_coordinator_queue_depth",
		Help: "Worker-pool slots currently in use, per org.",
	}, []string{"org_id"})
)

func init() {
	prometheus.MustRegister(runsTotal, coalescedTotal, queueDepth)
}

// scopeKind extracts the lock-scope prefix ("profile", "feedback",
// "aggregator", "success") from a scope string like "profile:prefs:u1", used
// to keep the runs_total/coalesced_total cardinality small.
func scopeKind(scope string) string {
	if i := strings.IndexByte(scope, ':'); i >= 0 {
		return scope[:i]
	}
	return scope
}
