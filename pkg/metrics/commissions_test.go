package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestCommissionMetricsExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCommissionMetrics(reg)

	m.IncTransition("pay", ResultApplied)
	m.IncTransition("pay", ResultApplied)
	m.IncTransition("cancel", ResultNoop)
	m.IncClamp("pending_commission")
	m.IncConflict()
	m.SetDrifted(3)
	m.AddRepaired(2)
	m.AddRepaired(0)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "storefront_commissions_transitions_total", "kind", "pay")
	require.NoError(t, err)
	require.Equal(t, float64(2), got)

	got, err = fetchCounterValue(mfs, "storefront_commissions_transitions_total", "result", ResultNoop)
	require.NoError(t, err)
	require.Equal(t, float64(1), got)

	got, err = fetchCounterValue(mfs, "storefront_commissions_balance_clamps_total", "field", "pending_commission")
	require.NoError(t, err)
	require.Equal(t, float64(1), got)

	got, err = fetchGaugeValue(mfs, "storefront_commissions_drifted_affiliates")
	require.NoError(t, err)
	require.Equal(t, float64(3), got)

	repaired := findMetricFamily(mfs, "storefront_commissions_negative_balance_repairs_total")
	require.NotNil(t, repaired)
	require.Equal(t, float64(2), repaired.GetMetric()[0].GetCounter().GetValue())
}

func TestCommissionMetricsNilSafe(t *testing.T) {
	var m *CommissionMetrics
	m.IncTransition("approve", ResultApplied)
	m.IncClamp("total_commission")
	m.IncConflict()
	m.SetDrifted(1)
	m.AddRepaired(1)

	noop := NewCommissionMetrics(nil)
	noop.IncTransition("approve", ResultFailed)
}
