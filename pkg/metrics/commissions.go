package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Transition results recorded by CommissionMetrics.
const (
	ResultApplied  = "applied"
	ResultNoop     = "noop"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// CommissionMetrics tracks commission ledger activity.
type CommissionMetrics struct {
	transitions *prometheus.CounterVec
	clamps      *prometheus.CounterVec
	conflicts   prometheus.Counter
	drifted     prometheus.Gauge
	repaired    prometheus.Counter
}

// NewCommissionMetrics registers the commission metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewCommissionMetrics(reg prometheus.Registerer) *CommissionMetrics {
	if reg == nil {
		return &CommissionMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "commissions",
		Name:      "transitions_total",
		Help:      "Referral status transitions by kind and result.",
	}, []string{"kind", "result"})
	clamps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "commissions",
		Name:      "balance_clamps_total",
		Help:      "Reversals that would have driven a balance below zero.",
	}, []string{"field"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "commissions",
		Name:      "concurrent_update_retries_total",
		Help:      "Transitions retried after losing an optimistic update.",
	})
	drifted := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "commissions",
		Name:      "drifted_affiliates",
		Help:      "Affiliates whose stored balances disagree with their referrals at the last check.",
	})
	repaired := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "commissions",
		Name:      "negative_balance_repairs_total",
		Help:      "Affiliates whose negative balances were reset to zero.",
	})
	reg.MustRegister(transitions, clamps, conflicts, drifted, repaired)
	return &CommissionMetrics{
		transitions: transitions,
		clamps:      clamps,
		conflicts:   conflicts,
		drifted:     drifted,
		repaired:    repaired,
	}
}

// IncTransition counts a transition attempt outcome.
func (m *CommissionMetrics) IncTransition(kind, result string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(kind), normalizeLabel(result)).Inc()
}

// IncClamp counts a reversal clamped at zero on field.
func (m *CommissionMetrics) IncClamp(field string) {
	if m == nil || m.clamps == nil {
		return
	}
	m.clamps.WithLabelValues(normalizeLabel(field)).Inc()
}

// IncConflict counts an optimistic update retry.
func (m *CommissionMetrics) IncConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}

// SetDrifted records the number of drifted affiliates seen by the last full check.
func (m *CommissionMetrics) SetDrifted(count int) {
	if m == nil || m.drifted == nil {
		return
	}
	m.drifted.Set(float64(count))
}

// AddRepaired counts affiliates fixed by a negative balance repair.
func (m *CommissionMetrics) AddRepaired(count int) {
	if m == nil || m.repaired == nil || count <= 0 {
		return
	}
	m.repaired.Add(float64(count))
}
