package commissions

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-affiliates/pkg/db/models"
	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-affiliates/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecompute(t *testing.T) {
	refs := []models.Referral{
		referralWith(enums.ReferralStatusPending, "1.00"),
		referralWith(enums.ReferralStatusApproved, "7.50"),
		referralWith(enums.ReferralStatusApproved, "2.25"),
		referralWith(enums.ReferralStatusPaid, "5.00"),
		referralWith(enums.ReferralStatusCancelled, "3.10"),
	}

	stats := Recompute(refs)
	assert.Equal(t, 5, stats.Referrals)
	assert.Equal(t, 1, stats.PendingCount)
	assert.Equal(t, 2, stats.ApprovedCount)
	assert.Equal(t, 1, stats.PaidCount)
	assert.Equal(t, 1, stats.CancelledCount)
	assert.Equal(t, "9.75", stats.ExpectedPending.StringFixed(2))
	assert.Equal(t, "5.00", stats.ExpectedPaid.StringFixed(2))
	assert.Equal(t, "3.10", stats.ExpectedCancelledTotal.StringFixed(2))
	assert.Equal(t, "14.75", stats.LifetimeEarnings.StringFixed(2))
}

func TestRecomputeEmpty(t *testing.T) {
	stats := Recompute(nil)
	assert.Equal(t, 0, stats.Referrals)
	assert.Equal(t, "0.00", stats.LifetimeEarnings.StringFixed(2))
}

func TestBuildDriftReportEpsilon(t *testing.T) {
	stats := Stats{ExpectedPending: dec("10.00"), ExpectedPaid: dec("5.00")}

	within := BuildDriftReport(models.Affiliate{PendingCommission: dec("10.01"), TotalCommission: dec("4.99")}, stats, dec("0.01"))
	assert.False(t, within.Drifted())

	beyond := BuildDriftReport(models.Affiliate{PendingCommission: dec("10.02"), TotalCommission: dec("5.00")}, stats, dec("0.01"))
	require.True(t, beyond.Drifted())
	require.Len(t, beyond.Entries, 1)
	assert.Equal(t, FieldPending, beyond.Entries[0].Field)
	assert.Equal(t, string(pkgerrors.CodeBalanceDrift), beyond.Entries[0].Code)
	assert.Equal(t, "0.02", beyond.Entries[0].Diff.StringFixed(2))
}

func TestCheckAllReportsOnlyDriftedAffiliates(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	healthy := env.seedAffiliate(t, "ALICE", "7.50", "0")
	env.seedReferral(t, healthy, enums.ReferralStatusApproved, "7.50", now)
	drifted := env.seedAffiliate(t, "BOB", "0", "12.00")
	env.seedReferral(t, drifted, enums.ReferralStatusPaid, "10.00", now)

	reports, scanned, err := env.svc.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, scanned)
	require.Len(t, reports, 1)
	assert.Equal(t, drifted.ID, reports[0].AffiliateID)
	assert.Equal(t, FieldTotal, reports[0].Entries[0].Field)
	assert.Equal(t, 1.0, env.counter(t, "storefront_commissions_drifted_affiliates", nil))
}

func TestCheckAffiliateUnknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CheckAffiliate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSummaryIsRecomputed(t *testing.T) {
	env := newTestEnv(t)
	aff := env.seedAffiliate(t, "ALICE", "99.00", "99.00")
	env.seedReferral(t, aff, enums.ReferralStatusPaid, "4.00", time.Now().UTC())

	summary, err := env.svc.Summary(context.Background(), aff.ID)
	require.NoError(t, err)
	assert.Equal(t, "ALICE", summary.Affiliate.AffiliateCode)
	assert.Equal(t, "4.00", summary.Stats.ExpectedPaid.StringFixed(2))
	assert.Equal(t, "4.00", summary.Stats.LifetimeEarnings.StringFixed(2))
}

func TestExportReport(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	alice := env.seedAffiliate(t, "ALICE", "0", "0")
	env.seedReferral(t, alice, enums.ReferralStatusPaid, "5.00", now)
	env.seedReferral(t, alice, enums.ReferralStatusApproved, "7.5", now.Add(time.Second))
	env.seedReferral(t, alice, enums.ReferralStatusCancelled, "2.00", now.Add(2*time.Second))
	env.seedAffiliate(t, "BOB", "0", "0")

	var buf bytes.Buffer
	require.NoError(t, env.svc.ExportReport(context.Background(), &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, reportHeader, rows[0])
	assert.Equal(t, []string{alice.ID.String(), "ALICE", "Affiliate ALICE", "true", "3", "7.50", "5.00", "2.00", "12.50"}, rows[1])
	assert.Equal(t, "BOB", rows[2][1])
	assert.Equal(t, "0.00", rows[2][8])
}

func TestRepairNegativeBalances(t *testing.T) {
	env := newTestEnv(t)
	broken := env.seedAffiliate(t, "ALICE", "-15.00", "3.00")
	fine := env.seedAffiliate(t, "BOB", "1.00", "2.00")
	ctx := context.Background()

	result, err := env.svc.RepairNegativeBalances(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	require.Len(t, result.Repaired, 1)
	assert.Equal(t, broken.ID, result.Repaired[0].AffiliateID)
	assert.Equal(t, "-15.00", result.Repaired[0].PreviousPending.StringFixed(2))

	assertBalances(t, env.affiliate(t, broken.ID), "0.00", "3.00")
	assertBalances(t, env.affiliate(t, fine.ID), "1.00", "2.00")

	var event models.CommissionLedgerEvent
	require.NoError(t, env.db.First(&event, "affiliate_id = ? AND type = ?", broken.ID, enums.CommissionEventRepaired).Error)
	assert.Nil(t, event.ReferralID)
	assert.Equal(t, "15.00", event.PendingDelta.StringFixed(2))
	assert.True(t, event.TotalDelta.IsZero())
	assert.EqualValues(t, 1, env.countRows(t, &models.OutboxEvent{}, "aggregate_id = ? AND event_type = ?", broken.ID, enums.EventAffiliateBalanceRepaired))
	assert.Equal(t, 1.0, env.counter(t, "storefront_commissions_negative_balance_repairs_total", nil))

	again, err := env.svc.RepairNegativeBalances(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, again.Repaired)
}

func TestRepairRetriesLostOptimisticUpdate(t *testing.T) {
	env := newTestEnvWithRepo(t, flaky(1, ErrConcurrentUpdate))
	broken := env.seedAffiliate(t, "ALICE", "-4.00", "0")
	later := env.seedAffiliate(t, "BOB", "0", "-1.00")

	result, err := env.svc.RepairNegativeBalances(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, result.Repaired, 2)
	assertBalances(t, env.affiliate(t, broken.ID), "0.00", "0.00")
	assertBalances(t, env.affiliate(t, later.ID), "0.00", "0.00")
	assert.EqualValues(t, 1, env.countRows(t, &models.CommissionLedgerEvent{}, "affiliate_id = ? AND type = ?", broken.ID, enums.CommissionEventRepaired))
	assert.Equal(t, 1.0, env.counter(t, "storefront_commissions_concurrent_update_retries_total", nil))
}

func TestRepairGivesUpAfterRepeatedConflicts(t *testing.T) {
	env := newTestEnvWithRepo(t, flaky(100, ErrConcurrentUpdate))
	broken := env.seedAffiliate(t, "ALICE", "-4.00", "0")

	_, err := env.svc.RepairNegativeBalances(context.Background(), admin)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assertBalances(t, env.affiliate(t, broken.ID), "-4.00", "0.00")
	assert.EqualValues(t, 0, env.countRows(t, &models.CommissionLedgerEvent{}, "affiliate_id = ?", broken.ID))
}

type listHookRepository struct {
	Repository
	afterList func()
}

func (r listHookRepository) ListAffiliates(ctx context.Context) ([]models.Affiliate, error) {
	found, err := r.Repository.ListAffiliates(ctx)
	if err == nil {
		r.afterList()
	}
	return found, err
}

func TestCheckAllReadsBalancesWithReferrals(t *testing.T) {
	var between func()
	env := newTestEnvWithRepo(t, func(r Repository) Repository {
		return listHookRepository{Repository: r, afterList: func() { between() }}
	})
	aff := env.seedAffiliate(t, "ALICE", "0", "0")
	ref := env.seedReferral(t, aff, enums.ReferralStatusPending, "10.00", time.Now().UTC())
	between = func() {
		_, err := env.svc.Approve(context.Background(), ref.ID, admin)
		require.NoError(t, err)
	}

	reports, scanned, err := env.svc.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, scanned)
	assert.Empty(t, reports)
	assertBalances(t, env.affiliate(t, aff.ID), "10.00", "0.00")
}

func TestAffiliateLedgerIncludesRepairs(t *testing.T) {
	env := newTestEnv(t)
	aff := env.seedAffiliate(t, "ALICE", "-3.00", "0")
	ref := env.seedReferral(t, aff, enums.ReferralStatusPending, "10.00", time.Now().UTC())
	ctx := context.Background()

	_, err := env.svc.RepairNegativeBalances(ctx, admin)
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, ref.ID, admin)
	require.NoError(t, err)

	events, err := env.svc.AffiliateLedger(ctx, aff.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, enums.CommissionEventRepaired, events[0].Type)
	assert.Nil(t, events[0].ReferralID)
	require.NotNil(t, events[1].ReferralID)
	assert.Equal(t, ref.ID, *events[1].ReferralID)

	_, err = env.svc.AffiliateLedger(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
