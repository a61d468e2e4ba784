package commissions

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-affiliates/api/responses"
	"github.com/angelmondragon/storefront-affiliates/api/validators"
	internalcommissions "github.com/angelmondragon/storefront-affiliates/internal/commissions"
	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-affiliates/pkg/errors"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
)

// Approve moves a referral to approved and credits pending commission.
func Approve(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, enums.ReferralStatusApproved, logg)
}

// Pay settles a referral once its order has completed.
func Pay(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, enums.ReferralStatusPaid, logg)
}

// Cancel cancels a referral, reversing whatever it had contributed.
func Cancel(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, enums.ReferralStatusCancelled, logg)
}

func transition(svc Ledger, target enums.ReferralStatus, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission ledger unavailable"))
			return
		}
		referralID, err := validators.ParseUUIDParam(r, "referralId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithReferralID(ctx, referralID.String())
		}

		ref, err := svc.Transition(ctx, referralID, target, actorFrom(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewReferralResponse(*ref))
	}
}

// GetReferral returns a referral with its audit history.
func GetReferral(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission ledger unavailable"))
			return
		}
		referralID, err := validators.ParseUUIDParam(r, "referralId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ref, err := svc.GetReferral(r.Context(), referralID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, err := svc.ReferralHistory(r.Context(), referralID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history := make([]LedgerEventResponse, 0, len(events))
		for _, ev := range events {
			history = append(history, newLedgerEventResponse(ev))
		}
		responses.WriteSuccess(w, ReferralDetailResponse{Referral: NewReferralResponse(*ref), History: history})
	}
}

// RecordReferral captures a referral for a checked-out order.
func RecordReferral(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission ledger unavailable"))
			return
		}

		var req RecordReferralRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ref, err := svc.RecordReferral(r.Context(), internalcommissions.RecordReferralInput{
			OrderID:       uuid.MustParse(req.OrderID),
			AffiliateCode: strings.TrimSpace(req.AffiliateCode),
			OrderTotal:    decimal.RequireFromString(strings.TrimSpace(req.OrderTotal)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, NewReferralResponse(*ref))
	}
}
