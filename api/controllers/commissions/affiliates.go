package commissions

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-affiliates/api/responses"
	"github.com/angelmondragon/storefront-affiliates/api/validators"
	internalcommissions "github.com/angelmondragon/storefront-affiliates/internal/commissions"
	pkgerrors "github.com/angelmondragon/storefront-affiliates/pkg/errors"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
	"github.com/angelmondragon/storefront-affiliates/pkg/pagination"
)

const reportFilename = "affiliate-commissions.csv"

// CreateAffiliate registers a new affiliate with zero balances.
func CreateAffiliate(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission ledger unavailable"))
			return
		}

		var req CreateAffiliateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalcommissions.CreateAffiliateInput{
			Code:     strings.TrimSpace(req.AffiliateCode),
			FullName: validators.SanitizeString(req.FullName, 120),
			Email:    strings.TrimSpace(req.Email),
		}
		if req.CommissionPercentage != nil {
			pct := decimal.RequireFromString(strings.TrimSpace(*req.CommissionPercentage))
			input.CommissionPercentage = &pct
		}

		aff, err := svc.CreateAffiliate(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newAffiliateResponse(*aff))
	}
}

// Summary returns stored balances next to the referral recomputation.
func Summary(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission ledger unavailable"))
			return
		}
		affiliateID, err := validators.ParseUUIDParam(r, "affiliateId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Summary(r.Context(), affiliateID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, SummaryResponse{
			Affiliate: newAffiliateResponse(summary.Affiliate),
			Stats:     newStatsResponse(summary.Stats),
		})
	}
}

// AffiliateLedger lists the affiliate's ledger events, oldest first.
func AffiliateLedger(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission ledger unavailable"))
			return
		}
		affiliateID, err := validators.ParseUUIDParam(r, "affiliateId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		events, err := svc.AffiliateLedger(r.Context(), affiliateID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]LedgerEventResponse, 0, len(events))
		for _, ev := range events {
			out = append(out, newLedgerEventResponse(ev))
		}
		responses.WriteSuccess(w, out)
	}
}

// ListReferrals pages through an affiliate's referrals, newest first.
func ListReferrals(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission ledger unavailable"))
			return
		}
		affiliateID, err := validators.ParseUUIDParam(r, "affiliateId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refs, page, err := svc.ListReferrals(r.Context(), affiliateID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]ReferralResponse, 0, len(refs))
		for _, ref := range refs {
			out = append(out, NewReferralResponse(ref))
		}
		responses.WriteSuccessWithMeta(w, out, page)
	}
}

// Drift recomputes every affiliate and lists those whose balances disagree.
func Drift(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission ledger unavailable"))
			return
		}

		reports, scanned, err := svc.CheckAll(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := DriftResponse{Scanned: scanned, Drifted: make([]DriftReportResponse, 0, len(reports))}
		for _, report := range reports {
			out.Drifted = append(out.Drifted, newDriftReportResponse(report))
		}
		responses.WriteSuccess(w, out)
	}
}

// RepairNegativeBalances resets negative balances to zero and reports what changed.
func RepairNegativeBalances(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission ledger unavailable"))
			return
		}

		result, err := svc.RepairNegativeBalances(r.Context(), actorFrom(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := RepairResponse{Scanned: result.Scanned, Repaired: make([]RepairedEntryResponse, 0, len(result.Repaired))}
		for _, entry := range result.Repaired {
			out.Repaired = append(out.Repaired, RepairedEntryResponse{
				AffiliateID:     entry.AffiliateID,
				AffiliateCode:   entry.AffiliateCode,
				PreviousPending: money(entry.PreviousPending),
				PreviousTotal:   money(entry.PreviousTotal),
			})
		}
		responses.WriteSuccess(w, out)
	}
}

// Report downloads the per-affiliate commission CSV.
func Report(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission ledger unavailable"))
			return
		}

		var buf bytes.Buffer
		if err := svc.ExportReport(r.Context(), &buf); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := responses.WriteCSV(w, reportFilename, func(out io.Writer) error {
			_, err := buf.WriteTo(out)
			return err
		}); err != nil && logg != nil {
			logg.Error(r.Context(), "write commission report", err)
		}
	}
}
