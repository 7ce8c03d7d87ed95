// Package metrics provides Prometheus collectors for the verification service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the verification collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Verification verdicts by reduced state and success flavor
	Verifications *prometheus.CounterVec

	// Branch latency: signature, revocation, national, mode
	BranchDuration *prometheus.HistogramVec

	// First failing national rule by identifier
	RuleFailures *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg selects the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "healthcert_verifications_total",
			Help: "Total verifications by verdict state and flavor",
		}, []string{"state", "flavor"}),

		BranchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healthcert_branch_duration_seconds",
			Help:    "Duration of each verification branch",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"branch"}),

		RuleFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "healthcert_rule_failures_total",
			Help: "National rule failures by rule identifier",
		}, []string{"rule_id"}),
	}
}

// ObserveVerification counts one verdict.
func (m *Metrics) ObserveVerification(state, flavor string) {
	if m != nil {
		m.Verifications.WithLabelValues(state, flavor).Inc()
	}
}

// ObserveBranch records how long one branch ran.
func (m *Metrics) ObserveBranch(branch string, d time.Duration) {
	if m != nil {
		m.BranchDuration.WithLabelValues(branch).Observe(d.Seconds())
	}
}

// ObserveRuleFailure counts a failing national rule.
func (m *Metrics) ObserveRuleFailure(ruleID string) {
	if m != nil {
		m.RuleFailures.WithLabelValues(ruleID).Inc()
	}
}
