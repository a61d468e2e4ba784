package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOrderStatusNormalizes(t *testing.T) {
	status, err := ParseOrderStatus("  Completed ")
	require.NoError(t, err)
	require.Equal(t, OrderStatusCompleted, status)

	status, err = ParseOrderStatus("canceled")
	require.NoError(t, err)
	require.Equal(t, OrderStatusCancelled, status)
	require.True(t, status.IsCancellation())
	require.False(t, OrderStatusRefunded.IsCancellation())
	require.False(t, OrderStatusShipped.IsCancellation())

	_, err = ParseOrderStatus("lost")
	require.Error(t, err)
}

func TestParseReferralStatus(t *testing.T) {
	for _, raw := range []string{"pending", "approved", "paid", "cancelled"} {
		status, err := ParseReferralStatus(raw)
		require.NoError(t, err)
		require.True(t, status.IsValid())
	}
	_, err := ParseReferralStatus("Paid")
	require.Error(t, err)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" ADMIN ")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, role)

	_, err = ParseRole("owner")
	require.Error(t, err)
}

func TestEventAndAggregateTypes(t *testing.T) {
	require.True(t, EventReferralStatusChanged.IsValid())
	require.False(t, OutboxEventType("order_created").IsValid())
	require.True(t, CommissionEventRepaired.IsValid())
	_, err := ParseCommissionEventType("refund")
	require.Error(t, err)
	agg, err := ParseOutboxAggregateType("affiliate")
	require.NoError(t, err)
	require.Equal(t, AggregateAffiliate, agg)
}
