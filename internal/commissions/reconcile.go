package commissions

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/angelmondragon/storefront-affiliates/internal/ledger"
	"github.com/angelmondragon/storefront-affiliates/pkg/db/models"
	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-affiliates/pkg/errors"
	"github.com/angelmondragon/storefront-affiliates/pkg/outbox"
	"github.com/angelmondragon/storefront-affiliates/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// Stats is the projection of an affiliate's referral rows.
type Stats struct {
	Referrals              int             `json:"referrals"`
	PendingCount           int             `json:"pending_count"`
	ApprovedCount          int             `json:"approved_count"`
	PaidCount              int             `json:"paid_count"`
	CancelledCount         int             `json:"cancelled_count"`
	ExpectedPending        decimal.Decimal `json:"expected_pending"`
	ExpectedPaid           decimal.Decimal `json:"expected_paid"`
	ExpectedCancelledTotal decimal.Decimal `json:"expected_cancelled_total"`
	LifetimeEarnings       decimal.Decimal `json:"lifetime_earnings"`
}

// Recompute derives expected balances from referral rows alone.
func Recompute(referrals []models.Referral) Stats {
	stats := Stats{
		ExpectedPending:        decimal.Zero,
		ExpectedPaid:           decimal.Zero,
		ExpectedCancelledTotal: decimal.Zero,
	}
	for _, ref := range referrals {
		stats.Referrals++
		switch ref.Status {
		case enums.ReferralStatusPending:
			stats.PendingCount++
		case enums.ReferralStatusApproved:
			stats.ApprovedCount++
			stats.ExpectedPending = stats.ExpectedPending.Add(ref.CommissionAmount)
		case enums.ReferralStatusPaid:
			stats.PaidCount++
			stats.ExpectedPaid = stats.ExpectedPaid.Add(ref.CommissionAmount)
		case enums.ReferralStatusCancelled:
			stats.CancelledCount++
			stats.ExpectedCancelledTotal = stats.ExpectedCancelledTotal.Add(ref.CommissionAmount)
		}
	}
	stats.ExpectedPending = stats.ExpectedPending.Round(2)
	stats.ExpectedPaid = stats.ExpectedPaid.Round(2)
	stats.ExpectedCancelledTotal = stats.ExpectedCancelledTotal.Round(2)
	stats.LifetimeEarnings = stats.ExpectedPaid.Add(decimal.Max(decimal.Zero, stats.ExpectedPending))
	return stats
}

// DriftEntry reports one balance that disagrees with the recomputation.
type DriftEntry struct {
	Code     string          `json:"code"`
	Field    string          `json:"field"`
	Stored   decimal.Decimal `json:"stored"`
	Expected decimal.Decimal `json:"expected"`
	Diff     decimal.Decimal `json:"diff"`
}

// DriftReport compares stored affiliate balances with the referral projection.
type DriftReport struct {
	AffiliateID   uuid.UUID       `json:"affiliate_id"`
	AffiliateCode string          `json:"affiliate_code"`
	StoredPending decimal.Decimal `json:"stored_pending"`
	StoredTotal   decimal.Decimal `json:"stored_total"`
	Stats         Stats           `json:"stats"`
	Entries       []DriftEntry    `json:"entries"`
}

// Drifted reports whether any balance is off by more than the epsilon.
func (r DriftReport) Drifted() bool {
	return len(r.Entries) > 0
}

// BuildDriftReport compares aff against stats. A field drifts when the
// absolute difference exceeds epsilon.
func BuildDriftReport(aff models.Affiliate, stats Stats, epsilon decimal.Decimal) DriftReport {
	report := DriftReport{
		AffiliateID:   aff.ID,
		AffiliateCode: aff.AffiliateCode,
		StoredPending: aff.PendingCommission,
		StoredTotal:   aff.TotalCommission,
		Stats:         stats,
		Entries:       []DriftEntry{},
	}
	check := func(field string, stored, expected decimal.Decimal) {
		diff := stored.Sub(expected)
		if diff.Abs().GreaterThan(epsilon) {
			report.Entries = append(report.Entries, DriftEntry{
				Code:     string(pkgerrors.CodeBalanceDrift),
				Field:    field,
				Stored:   stored,
				Expected: expected,
				Diff:     diff,
			})
		}
	}
	check(FieldPending, aff.PendingCommission, stats.ExpectedPending)
	check(FieldTotal, aff.TotalCommission, stats.ExpectedPaid)
	return report
}

// AffiliateSummary is the dashboard view of an affiliate. It is never stored.
type AffiliateSummary struct {
	Affiliate models.Affiliate `json:"affiliate"`
	Stats     Stats            `json:"stats"`
}

// CheckAffiliate recomputes one affiliate and reports drift as data.
func (s *Service) CheckAffiliate(ctx context.Context, affiliateID uuid.UUID) (*DriftReport, error) {
	aff, refs, err := s.loadAffiliate(ctx, affiliateID)
	if err != nil {
		return nil, toAPIError(err)
	}
	report := BuildDriftReport(*aff, Recompute(refs), s.cfg.Epsilon())
	s.logDrift(ctx, report)
	return &report, nil
}

// CheckAll builds a drift report for every affiliate and returns only the
// drifted ones, plus the number of affiliates scanned. An affiliate that
// cannot be read does not stop the scan; its error is combined into the
// returned error alongside the partial result.
func (s *Service) CheckAll(ctx context.Context) ([]DriftReport, int, error) {
	var affiliates []models.Affiliate
	if err := s.read(ctx, func(ctx context.Context) error {
		found, err := s.repo.ListAffiliates(ctx)
		if err != nil {
			return err
		}
		affiliates = found
		return nil
	}); err != nil {
		return nil, 0, toAPIError(err)
	}

	drifted := []DriftReport{}
	var errs error
	for _, listed := range affiliates {
		aff, refs, err := s.snapshot(ctx, listed.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("affiliate %s: %w", listed.AffiliateCode, err))
			continue
		}
		report := BuildDriftReport(*aff, Recompute(refs), s.cfg.Epsilon())
		if report.Drifted() {
			s.logDrift(ctx, report)
			drifted = append(drifted, report)
		}
	}
	s.metrics.SetDrifted(len(drifted))
	return drifted, len(affiliates), toAPIError(errs)
}

// Summary returns the recomputed dashboard projection for an affiliate.
func (s *Service) Summary(ctx context.Context, affiliateID uuid.UUID) (*AffiliateSummary, error) {
	aff, refs, err := s.loadAffiliate(ctx, affiliateID)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &AffiliateSummary{Affiliate: *aff, Stats: Recompute(refs)}, nil
}

var reportHeader = []string{
	"affiliate_id",
	"affiliate_code",
	"full_name",
	"is_active",
	"referrals",
	"expected_pending",
	"expected_paid",
	"expected_cancelled_total",
	"lifetime_earnings",
}

// ExportReport writes one CSV row per affiliate, derived from referral rows
// and affiliate identity only.
func (s *Service) ExportReport(ctx context.Context, w io.Writer) error {
	var affiliates []models.Affiliate
	if err := s.read(ctx, func(ctx context.Context) error {
		found, err := s.repo.ListAffiliates(ctx)
		if err != nil {
			return err
		}
		affiliates = found
		return nil
	}); err != nil {
		return toAPIError(err)
	}

	out := csv.NewWriter(w)
	if err := out.Write(reportHeader); err != nil {
		return err
	}
	for _, aff := range affiliates {
		refs, err := s.referralsFor(ctx, aff.ID)
		if err != nil {
			return toAPIError(err)
		}
		stats := Recompute(refs)
		if err := out.Write([]string{
			aff.ID.String(),
			aff.AffiliateCode,
			aff.FullName,
			strconv.FormatBool(aff.IsActive),
			strconv.Itoa(stats.Referrals),
			stats.ExpectedPending.StringFixed(2),
			stats.ExpectedPaid.StringFixed(2),
			stats.ExpectedCancelledTotal.StringFixed(2),
			stats.LifetimeEarnings.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

// RepairNegativeBalances resets negative affiliate balances to zero. It is
// never run implicitly; every repair is audited and published.
func (s *Service) RepairNegativeBalances(ctx context.Context, actor Actor) (*RepairResult, error) {
	var affiliates []models.Affiliate
	if err := s.read(ctx, func(ctx context.Context) error {
		found, err := s.repo.ListAffiliates(ctx)
		if err != nil {
			return err
		}
		affiliates = found
		return nil
	}); err != nil {
		return nil, toAPIError(err)
	}

	result := &RepairResult{Scanned: len(affiliates), Repaired: []RepairedEntry{}}
	for _, aff := range affiliates {
		if !aff.PendingCommission.IsNegative() && !aff.TotalCommission.IsNegative() {
			continue
		}
		entry, err := s.repairAffiliate(ctx, aff.ID, actor)
		if err != nil {
			return nil, toAPIError(err)
		}
		if entry != nil {
			result.Repaired = append(result.Repaired, *entry)
		}
	}
	s.metrics.AddRepaired(len(result.Repaired))
	return result, nil
}

// repairAffiliate clamps one affiliate, retrying when a concurrent balance
// write wins the version check.
func (s *Service) repairAffiliate(ctx context.Context, affiliateID uuid.UUID, actor Actor) (*RepairedEntry, error) {
	ctx = s.logg.WithAffiliateID(ctx, affiliateID.String())
	var entry *RepairedEntry
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		entry = nil
		err := s.clampAffiliate(ctx, affiliateID, actor, &entry)
		if errors.Is(err, ErrConcurrentUpdate) {
			s.metrics.IncConflict()
			s.logg.Debug(ctx, "balance repair lost optimistic update, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}
	if entry != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"previous_pending": entry.PreviousPending.StringFixed(2),
			"previous_total":   entry.PreviousTotal.StringFixed(2),
		}), "negative balance repaired")
	}
	return entry, nil
}

func (s *Service) clampAffiliate(ctx context.Context, affiliateID uuid.UUID, actor Actor, out **RepairedEntry) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		aff, err := repo.GetAffiliate(ctx, affiliateID)
		if err != nil {
			return err
		}
		pending := decimal.Max(decimal.Zero, aff.PendingCommission)
		total := decimal.Max(decimal.Zero, aff.TotalCommission)
		if pending.Equal(aff.PendingCommission) && total.Equal(aff.TotalCommission) {
			return nil
		}
		if err := repo.UpdateAffiliateBalances(ctx, aff.ID, aff.Version, pending, total); err != nil {
			return err
		}
		if _, err := s.ledger.RecordEvent(ctx, tx, ledger.RecordEventInput{
			AffiliateID:  aff.ID,
			Type:         enums.CommissionEventRepaired,
			PendingDelta: pending.Sub(aff.PendingCommission),
			TotalDelta:   total.Sub(aff.TotalCommission),
			ActorID:      actor.Subject,
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAffiliateBalanceRepaired,
			AggregateType: enums.AggregateAffiliate,
			AggregateID:   aff.ID,
			Actor:         actor.ref(),
			OccurredAt:    s.now(),
			Data: payloads.AffiliateBalanceRepairedEvent{
				AffiliateID:       aff.ID,
				PreviousPending:   aff.PendingCommission.StringFixed(2),
				PreviousTotal:     aff.TotalCommission.StringFixed(2),
				PendingCommission: pending.StringFixed(2),
				TotalCommission:   total.StringFixed(2),
			},
		}); err != nil {
			return err
		}
		*out = &RepairedEntry{
			AffiliateID:     aff.ID,
			AffiliateCode:   aff.AffiliateCode,
			PreviousPending: aff.PendingCommission,
			PreviousTotal:   aff.TotalCommission,
		}
		return nil
	})
}

func (s *Service) loadAffiliate(ctx context.Context, affiliateID uuid.UUID) (*models.Affiliate, []models.Referral, error) {
	aff, refs, err := s.snapshot(ctx, affiliateID)
	if err != nil {
		return nil, nil, notFoundAs(err, fmt.Sprintf("affiliate %s", affiliateID))
	}
	return aff, refs, nil
}

// snapshot reads an affiliate and its referrals in one transaction. The share
// lock on the affiliate row keeps a concurrent transition from landing
// between the two reads.
func (s *Service) snapshot(ctx context.Context, affiliateID uuid.UUID) (*models.Affiliate, []models.Referral, error) {
	var (
		aff  *models.Affiliate
		refs []models.Referral
	)
	err := s.read(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			found, err := repo.GetAffiliateForShare(ctx, affiliateID)
			if err != nil {
				return err
			}
			listed, err := repo.ListReferralsByAffiliate(ctx, affiliateID)
			if err != nil {
				return err
			}
			aff, refs = found, listed
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return aff, refs, nil
}

func (s *Service) referralsFor(ctx context.Context, affiliateID uuid.UUID) ([]models.Referral, error) {
	var refs []models.Referral
	err := s.read(ctx, func(ctx context.Context) error {
		found, err := s.repo.ListReferralsByAffiliate(ctx, affiliateID)
		if err != nil {
			return err
		}
		refs = found
		return nil
	})
	return refs, err
}

func (s *Service) logDrift(ctx context.Context, report DriftReport) {
	if !report.Drifted() {
		return
	}
	fields := map[string]any{
		"stored_pending":   report.StoredPending.StringFixed(2),
		"stored_total":     report.StoredTotal.StringFixed(2),
		"expected_pending": report.Stats.ExpectedPending.StringFixed(2),
		"expected_paid":    report.Stats.ExpectedPaid.StringFixed(2),
	}
	s.logg.Warn(s.logg.WithFields(s.logg.WithAffiliateID(ctx, report.AffiliateID.String()), fields), "affiliate balance drift detected")
}
