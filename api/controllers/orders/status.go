package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	commissionctl "github.com/angelmondragon/storefront-affiliates/api/controllers/commissions"
	"github.com/angelmondragon/storefront-affiliates/api/responses"
	"github.com/angelmondragon/storefront-affiliates/api/validators"
	internalorders "github.com/angelmondragon/storefront-affiliates/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-affiliates/pkg/errors"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
)

// StatusBridge applies an order status change to the linked referral.
type StatusBridge interface {
	OnOrderStatusChanged(ctx context.Context, orderID uuid.UUID, status string) (*internalorders.BridgeResult, error)
}

// UpdateStatusRequest carries the new storefront order status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type StatusResponse struct {
	OrderID  uuid.UUID                       `json:"order_id"`
	Status   string                          `json:"status"`
	Action   string                          `json:"action"`
	Referral *commissionctl.ReferralResponse `json:"referral,omitempty"`
}

// UpdateStatus lets operators replay an order status change by hand.
func UpdateStatus(bridge StatusBridge, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if bridge == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order status bridge unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req UpdateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := bridge.OnOrderStatusChanged(r.Context(), orderID, req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := StatusResponse{
			OrderID: result.OrderID,
			Status:  string(result.Status),
			Action:  string(result.Action),
		}
		if result.Referral != nil {
			ref := commissionctl.NewReferralResponse(*result.Referral)
			out.Referral = &ref
		}
		responses.WriteSuccess(w, out)
	}
}
