package commissions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalcommissions "github.com/angelmondragon/storefront-affiliates/internal/commissions"
	"github.com/angelmondragon/storefront-affiliates/pkg/db/models"
	"github.com/angelmondragon/storefront-affiliates/pkg/types"
)

// RecordReferralRequest is posted by checkout when an order carries an affiliate code.
type RecordReferralRequest struct {
	OrderID       string `json:"order_id" validate:"required,uuid"`
	AffiliateCode string `json:"affiliate_code" validate:"required,min=2,max=64"`
	OrderTotal    string `json:"order_total" validate:"required,money"`
}

// CreateAffiliateRequest is the admin affiliate signup payload.
type CreateAffiliateRequest struct {
	AffiliateCode        string  `json:"affiliate_code" validate:"required,min=2,max=64"`
	FullName             string  `json:"full_name" validate:"required,max=120"`
	Email                string  `json:"email" validate:"omitempty,email"`
	CommissionPercentage *string `json:"commission_percentage" validate:"omitempty,percent"`
}

type ReferralResponse struct {
	ID                       uuid.UUID  `json:"id"`
	AffiliateID              uuid.UUID  `json:"affiliate_id"`
	OrderID                  uuid.UUID  `json:"order_id"`
	OrderTotal               string     `json:"order_total"`
	CommissionPercentage     string     `json:"commission_percentage"`
	CommissionAmount         string     `json:"commission_amount"`
	Status                   string     `json:"status"`
	CommissionAddedToPending bool       `json:"commission_added_to_pending"`
	CommissionPaid           bool       `json:"commission_paid"`
	CommissionReversed       bool       `json:"commission_reversed"`
	CommissionReversedAt     *time.Time `json:"commission_reversed_at,omitempty"`
	ApprovedAt               *time.Time `json:"approved_at,omitempty"`
	PaidAt                   *time.Time `json:"paid_at,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

type LedgerEventResponse struct {
	ID           uuid.UUID  `json:"id"`
	ReferralID   *uuid.UUID `json:"referral_id,omitempty"`
	AffiliateID  uuid.UUID  `json:"affiliate_id"`
	Type         string     `json:"type"`
	FromStatus   *string    `json:"from_status,omitempty"`
	ToStatus     *string    `json:"to_status,omitempty"`
	PendingDelta string     `json:"pending_delta"`
	TotalDelta   string     `json:"total_delta"`
	Clamped      bool       `json:"clamped"`
	ActorID      *string    `json:"actor_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type ReferralDetailResponse struct {
	Referral ReferralResponse      `json:"referral"`
	History  []LedgerEventResponse `json:"history"`
}

type AffiliateResponse struct {
	ID                   uuid.UUID `json:"id"`
	AffiliateCode        string    `json:"affiliate_code"`
	FullName             string    `json:"full_name"`
	Email                *string   `json:"email,omitempty"`
	IsActive             bool      `json:"is_active"`
	CommissionPercentage string    `json:"commission_percentage"`
	PendingCommission    string    `json:"pending_commission"`
	TotalCommission      string    `json:"total_commission"`
	LifetimeEarnings     string    `json:"lifetime_earnings"`
	CreatedAt            time.Time `json:"created_at"`
}

type StatsResponse struct {
	Referrals              int    `json:"referrals"`
	PendingCount           int    `json:"pending_count"`
	ApprovedCount          int    `json:"approved_count"`
	PaidCount              int    `json:"paid_count"`
	CancelledCount         int    `json:"cancelled_count"`
	ExpectedPending        string `json:"expected_pending"`
	ExpectedPaid           string `json:"expected_paid"`
	ExpectedCancelledTotal string `json:"expected_cancelled_total"`
	LifetimeEarnings       string `json:"lifetime_earnings"`
}

type SummaryResponse struct {
	Affiliate AffiliateResponse `json:"affiliate"`
	Stats     StatsResponse     `json:"stats"`
}

type DriftEntryResponse struct {
	Code     string `json:"code"`
	Field    string `json:"field"`
	Stored   string `json:"stored"`
	Expected string `json:"expected"`
	Diff     string `json:"diff"`
}

type DriftReportResponse struct {
	AffiliateID   uuid.UUID            `json:"affiliate_id"`
	AffiliateCode string               `json:"affiliate_code"`
	StoredPending string               `json:"stored_pending"`
	StoredTotal   string               `json:"stored_total"`
	Stats         StatsResponse        `json:"stats"`
	Entries       []DriftEntryResponse `json:"entries"`
}

type DriftResponse struct {
	Scanned int                   `json:"scanned"`
	Drifted []DriftReportResponse `json:"drifted"`
}

type RepairedEntryResponse struct {
	AffiliateID     uuid.UUID `json:"affiliate_id"`
	AffiliateCode   string    `json:"affiliate_code"`
	PreviousPending string    `json:"previous_pending"`
	PreviousTotal   string    `json:"previous_total"`
}

type RepairResponse struct {
	Scanned  int                     `json:"scanned"`
	Repaired []RepairedEntryResponse `json:"repaired"`
}

func money(d decimal.Decimal) string {
	return types.NewMoney(d).String()
}

func NewReferralResponse(ref models.Referral) ReferralResponse {
	return ReferralResponse{
		ID:                       ref.ID,
		AffiliateID:              ref.AffiliateID,
		OrderID:                  ref.OrderID,
		OrderTotal:               money(ref.OrderTotal),
		CommissionPercentage:     money(ref.CommissionPercentage),
		CommissionAmount:         money(ref.CommissionAmount),
		Status:                   string(ref.Status),
		CommissionAddedToPending: ref.CommissionAddedToPending,
		CommissionPaid:           ref.CommissionPaid,
		CommissionReversed:       ref.CommissionReversed,
		CommissionReversedAt:     ref.CommissionReversedAt,
		ApprovedAt:               ref.ApprovedAt,
		PaidAt:                   ref.PaidAt,
		CreatedAt:                ref.CreatedAt,
		UpdatedAt:                ref.UpdatedAt,
	}
}

func newLedgerEventResponse(ev models.CommissionLedgerEvent) LedgerEventResponse {
	out := LedgerEventResponse{
		ID:           ev.ID,
		ReferralID:   ev.ReferralID,
		AffiliateID:  ev.AffiliateID,
		Type:         string(ev.Type),
		PendingDelta: money(ev.PendingDelta),
		TotalDelta:   money(ev.TotalDelta),
		Clamped:      ev.Clamped,
		ActorID:      ev.ActorID,
		CreatedAt:    ev.CreatedAt,
	}
	if ev.FromStatus != nil {
		from := string(*ev.FromStatus)
		out.FromStatus = &from
	}
	if ev.ToStatus != nil {
		to := string(*ev.ToStatus)
		out.ToStatus = &to
	}
	return out
}

func newAffiliateResponse(aff models.Affiliate) AffiliateResponse {
	return AffiliateResponse{
		ID:                   aff.ID,
		AffiliateCode:        aff.AffiliateCode,
		FullName:             aff.FullName,
		Email:                aff.Email,
		IsActive:             aff.IsActive,
		CommissionPercentage: money(aff.CommissionPercentage),
		PendingCommission:    money(aff.PendingCommission),
		TotalCommission:      money(aff.TotalCommission),
		LifetimeEarnings:     money(aff.LifetimeEarnings()),
		CreatedAt:            aff.CreatedAt,
	}
}

func newStatsResponse(s internalcommissions.Stats) StatsResponse {
	return StatsResponse{
		Referrals:              s.Referrals,
		PendingCount:           s.PendingCount,
		ApprovedCount:          s.ApprovedCount,
		PaidCount:              s.PaidCount,
		CancelledCount:         s.CancelledCount,
		ExpectedPending:        money(s.ExpectedPending),
		ExpectedPaid:           money(s.ExpectedPaid),
		ExpectedCancelledTotal: money(s.ExpectedCancelledTotal),
		LifetimeEarnings:       money(s.LifetimeEarnings),
	}
}

func newDriftReportResponse(r internalcommissions.DriftReport) DriftReportResponse {
	entries := make([]DriftEntryResponse, 0, len(r.Entries))
	for _, e := range r.Entries {
		entries = append(entries, DriftEntryResponse{
			Code:     e.Code,
			Field:    e.Field,
			Stored:   money(e.Stored),
			Expected: money(e.Expected),
			Diff:     money(e.Diff),
		})
	}
	return DriftReportResponse{
		AffiliateID:   r.AffiliateID,
		AffiliateCode: r.AffiliateCode,
		StoredPending: money(r.StoredPending),
		StoredTotal:   money(r.StoredTotal),
		Stats:         newStatsResponse(r.Stats),
		Entries:       entries,
	}
}
