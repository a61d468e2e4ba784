package commissions

import (
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-affiliates/pkg/db/models"
	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	planNow       = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	completedGate = OrderGate{Found: true, Status: enums.OrderStatusCompleted}
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func referralWith(status enums.ReferralStatus, amount string) models.Referral {
	ref := models.Referral{
		ID:               uuid.New(),
		AffiliateID:      uuid.New(),
		OrderID:          uuid.New(),
		CommissionAmount: dec(amount),
		Status:           status,
	}
	switch status {
	case enums.ReferralStatusApproved:
		ref.CommissionAddedToPending = true
	case enums.ReferralStatusPaid:
		ref.CommissionAddedToPending = true
		ref.CommissionPaid = true
	}
	return ref
}

func TestPlanApprove(t *testing.T) {
	ref := referralWith(enums.ReferralStatusPending, "15.00")

	out, err := Plan(ref, enums.ReferralStatusApproved, OrderGate{}, planNow)
	require.NoError(t, err)
	assert.False(t, out.Noop)
	assert.True(t, out.Delta.Pending.Equal(dec("15.00")))
	assert.True(t, out.Delta.Total.IsZero())
	assert.Equal(t, enums.ReferralStatusApproved, out.Referral.Status)
	assert.True(t, out.Referral.CommissionAddedToPending)
	require.NotNil(t, out.Referral.ApprovedAt)
	assert.Equal(t, planNow, *out.Referral.ApprovedAt)
	assert.Equal(t, planNow, out.Referral.UpdatedAt)
}

func TestPlanApproveSkipsAccrualWhenFlagAlreadySet(t *testing.T) {
	ref := referralWith(enums.ReferralStatusPending, "15.00")
	ref.CommissionAddedToPending = true

	out, err := Plan(ref, enums.ReferralStatusApproved, OrderGate{}, planNow)
	require.NoError(t, err)
	assert.True(t, out.Delta.IsZero())
	assert.Equal(t, enums.ReferralStatusApproved, out.Referral.Status)
}

func TestPlanApproveTwiceIsNoop(t *testing.T) {
	ref := referralWith(enums.ReferralStatusApproved, "15.00")

	out, err := Plan(ref, enums.ReferralStatusApproved, OrderGate{}, planNow)
	require.NoError(t, err)
	assert.True(t, out.Noop)
	assert.True(t, out.Delta.IsZero())
	assert.Equal(t, ref, out.Referral)
}

func TestPlanPay(t *testing.T) {
	ref := referralWith(enums.ReferralStatusApproved, "20.00")

	out, err := Plan(ref, enums.ReferralStatusPaid, completedGate, planNow)
	require.NoError(t, err)
	assert.True(t, out.Delta.Total.Equal(dec("20.00")))
	assert.True(t, out.Delta.Pending.Equal(dec("-20.00")))
	assert.True(t, out.Referral.CommissionPaid)
	require.NotNil(t, out.Referral.PaidAt)
}

func TestPlanPayWithoutAccrualLeavesPendingAlone(t *testing.T) {
	ref := referralWith(enums.ReferralStatusApproved, "20.00")
	ref.CommissionAddedToPending = false

	out, err := Plan(ref, enums.ReferralStatusPaid, completedGate, planNow)
	require.NoError(t, err)
	assert.True(t, out.Delta.Pending.IsZero())
	assert.True(t, out.Delta.Total.Equal(dec("20.00")))
}

func TestPlanPayGuards(t *testing.T) {
	cases := []struct {
		name string
		ref  models.Referral
		gate OrderGate
		want error
	}{
		{
			name: "already paid wins over everything",
			ref:  referralWith(enums.ReferralStatusPaid, "5.00"),
			gate: OrderGate{},
			want: ErrAlreadyPaid,
		},
		{
			name: "pending referral",
			ref:  referralWith(enums.ReferralStatusPending, "5.00"),
			gate: completedGate,
			want: ErrInvalidTransition,
		},
		{
			name: "pending referral with closed gate reports the state first",
			ref:  referralWith(enums.ReferralStatusPending, "5.00"),
			gate: OrderGate{Found: true, Status: enums.OrderStatusProcessing},
			want: ErrInvalidTransition,
		},
		{
			name: "cancelled referral",
			ref:  referralWith(enums.ReferralStatusCancelled, "5.00"),
			gate: completedGate,
			want: ErrInvalidTransition,
		},
		{
			name: "order not completed",
			ref:  referralWith(enums.ReferralStatusApproved, "5.00"),
			gate: OrderGate{Found: true, Status: enums.OrderStatusShipped},
			want: ErrPayoutNotReady,
		},
		{
			name: "order missing",
			ref:  referralWith(enums.ReferralStatusApproved, "5.00"),
			gate: OrderGate{},
			want: ErrPayoutNotReady,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Plan(tc.ref, enums.ReferralStatusPaid, tc.gate, planNow)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestPlanCancelSelectsReversalField(t *testing.T) {
	cases := []struct {
		name        string
		ref         models.Referral
		wantPending string
		wantTotal   string
	}{
		{name: "pending", ref: referralWith(enums.ReferralStatusPending, "9.99"), wantPending: "0", wantTotal: "0"},
		{name: "approved", ref: referralWith(enums.ReferralStatusApproved, "9.99"), wantPending: "-9.99", wantTotal: "0"},
		{name: "paid", ref: referralWith(enums.ReferralStatusPaid, "9.99"), wantPending: "0", wantTotal: "-9.99"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Plan(tc.ref, enums.ReferralStatusCancelled, OrderGate{}, planNow)
			require.NoError(t, err)
			assert.True(t, out.Delta.Pending.Equal(dec(tc.wantPending)), "pending delta %s", out.Delta.Pending)
			assert.True(t, out.Delta.Total.Equal(dec(tc.wantTotal)), "total delta %s", out.Delta.Total)
			assert.Equal(t, enums.ReferralStatusCancelled, out.Referral.Status)
			assert.True(t, out.Referral.CommissionReversed)
			require.NotNil(t, out.Referral.CommissionReversedAt)
		})
	}
}

func TestPlanCancelUsesFlagsNotStatus(t *testing.T) {
	// approved row whose paid flag is set: the total field must be reversed
	ref := referralWith(enums.ReferralStatusApproved, "3.00")
	ref.CommissionPaid = true

	out, err := Plan(ref, enums.ReferralStatusCancelled, OrderGate{}, planNow)
	require.NoError(t, err)
	assert.True(t, out.Delta.Pending.IsZero())
	assert.True(t, out.Delta.Total.Equal(dec("-3.00")))
}

func TestPlanCancelTwiceIsNoop(t *testing.T) {
	ref := referralWith(enums.ReferralStatusCancelled, "3.00")
	ref.CommissionReversed = true

	out, err := Plan(ref, enums.ReferralStatusCancelled, OrderGate{}, planNow)
	require.NoError(t, err)
	assert.True(t, out.Noop)
	assert.True(t, out.Delta.IsZero())
}

func TestPlanRejectsUnknownMoves(t *testing.T) {
	for _, tc := range []struct {
		from enums.ReferralStatus
		to   enums.ReferralStatus
	}{
		{enums.ReferralStatusPaid, enums.ReferralStatusApproved},
		{enums.ReferralStatusCancelled, enums.ReferralStatusApproved},
		{enums.ReferralStatusApproved, enums.ReferralStatusPending},
		{enums.ReferralStatusPending, enums.ReferralStatusPending},
	} {
		_, err := Plan(referralWith(tc.from, "1.00"), tc.to, completedGate, planNow)
		assert.ErrorIs(t, err, ErrInvalidTransition, "%s to %s", tc.from, tc.to)
	}
}

func TestApplyDeltaClampsSubtractions(t *testing.T) {
	aff := models.Affiliate{PendingCommission: dec("4.00"), TotalCommission: dec("10.00")}

	balances, clamped := ApplyDelta(aff, BalanceDelta{Pending: dec("-15.00"), Total: dec("5.00")})
	assert.True(t, balances.Pending.IsZero())
	assert.True(t, balances.Total.Equal(dec("15.00")))
	assert.Equal(t, []string{FieldPending}, clamped)

	applied := balances.Delta(aff)
	assert.True(t, applied.Pending.Equal(dec("-4.00")))
	assert.True(t, applied.Total.Equal(dec("5.00")))
}

func TestApplyDeltaNoClampWhenExact(t *testing.T) {
	aff := models.Affiliate{PendingCommission: dec("15.00"), TotalCommission: dec("0")}

	balances, clamped := ApplyDelta(aff, BalanceDelta{Pending: dec("-15.00")})
	assert.Empty(t, clamped)
	assert.True(t, balances.Pending.IsZero())
}

func TestApplyDeltaLeavesNegativeBalancesForRepair(t *testing.T) {
	aff := models.Affiliate{PendingCommission: dec("-2.00"), TotalCommission: dec("0")}

	balances, clamped := ApplyDelta(aff, BalanceDelta{Pending: dec("5.00")})
	assert.Empty(t, clamped)
	assert.True(t, balances.Pending.Equal(dec("3.00")))
}

func TestCommissionFor(t *testing.T) {
	assert.Equal(t, "15.00", CommissionFor(dec("150.00"), dec("10")).StringFixed(2))
	assert.Equal(t, "6.17", CommissionFor(dec("123.45"), dec("5")).StringFixed(2))
	assert.Equal(t, "0.00", CommissionFor(dec("0.09"), dec("5")).StringFixed(2))
}

// Replays every valid path through the state machine and checks that
// balances never go negative and match the recomputation after each step.
func TestSerialSequencesKeepBalancesConsistent(t *testing.T) {
	paths := [][]enums.ReferralStatus{
		{enums.ReferralStatusApproved, enums.ReferralStatusPaid},
		{enums.ReferralStatusApproved, enums.ReferralStatusPaid, enums.ReferralStatusCancelled},
		{enums.ReferralStatusApproved, enums.ReferralStatusCancelled},
		{enums.ReferralStatusCancelled},
		{enums.ReferralStatusApproved, enums.ReferralStatusApproved, enums.ReferralStatusPaid, enums.ReferralStatusPaid},
		{enums.ReferralStatusApproved, enums.ReferralStatusCancelled, enums.ReferralStatusCancelled},
		{enums.ReferralStatusApproved, enums.ReferralStatusPaid, enums.ReferralStatusCancelled, enums.ReferralStatusCancelled},
	}
	amounts := []string{"5.00", "7.50", "0.01", "123.45"}

	for _, path := range paths {
		aff := models.Affiliate{PendingCommission: decimal.Zero, TotalCommission: decimal.Zero}
		refs := make([]models.Referral, len(amounts))
		for i, amount := range amounts {
			refs[i] = referralWith(enums.ReferralStatusPending, amount)
		}
		for _, target := range path {
			for i := range refs {
				out, err := Plan(refs[i], target, completedGate, planNow)
				if errors.Is(err, ErrAlreadyPaid) {
					continue
				}
				require.NoError(t, err)
				if out.Noop {
					continue
				}
				balances, clamped := ApplyDelta(aff, out.Delta)
				require.Empty(t, clamped)
				aff.PendingCommission, aff.TotalCommission = balances.Pending, balances.Total
				refs[i] = out.Referral

				require.False(t, aff.PendingCommission.IsNegative())
				require.False(t, aff.TotalCommission.IsNegative())
				report := BuildDriftReport(aff, Recompute(refs), dec("0.01"))
				require.False(t, report.Drifted(), "path %v drifted: %+v", path, report.Entries)
			}
		}
	}
}
