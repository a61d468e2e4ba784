package commissions

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-affiliates/api/middleware"
	internalcommissions "github.com/angelmondragon/storefront-affiliates/internal/commissions"
	"github.com/angelmondragon/storefront-affiliates/pkg/db/models"
	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
	"github.com/angelmondragon/storefront-affiliates/pkg/pagination"
)

// Ledger is the slice of the commission service the HTTP layer drives.
type Ledger interface {
	Transition(ctx context.Context, referralID uuid.UUID, target enums.ReferralStatus, actor internalcommissions.Actor) (*models.Referral, error)
	GetReferral(ctx context.Context, referralID uuid.UUID) (*models.Referral, error)
	ReferralHistory(ctx context.Context, referralID uuid.UUID) ([]models.CommissionLedgerEvent, error)
	AffiliateLedger(ctx context.Context, affiliateID uuid.UUID) ([]models.CommissionLedgerEvent, error)
	RecordReferral(ctx context.Context, input internalcommissions.RecordReferralInput) (*models.Referral, error)
	CreateAffiliate(ctx context.Context, input internalcommissions.CreateAffiliateInput) (*models.Affiliate, error)
	Summary(ctx context.Context, affiliateID uuid.UUID) (*internalcommissions.AffiliateSummary, error)
	ListReferrals(ctx context.Context, affiliateID uuid.UUID, params pagination.Params) ([]models.Referral, pagination.Page, error)
	CheckAll(ctx context.Context) ([]internalcommissions.DriftReport, int, error)
	RepairNegativeBalances(ctx context.Context, actor internalcommissions.Actor) (*internalcommissions.RepairResult, error)
	ExportReport(ctx context.Context, w io.Writer) error
}

func actorFrom(ctx context.Context) internalcommissions.Actor {
	caller := middleware.CallerFrom(ctx)
	return internalcommissions.Actor{Subject: caller.Subject, Role: caller.Role.String()}
}
