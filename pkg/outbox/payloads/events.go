package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
)

// ReferralCreatedEvent is emitted when checkout records a referral.
type ReferralCreatedEvent struct {
	ReferralID       uuid.UUID `json:"referral_id"`
	AffiliateID      uuid.UUID `json:"affiliate_id"`
	OrderID          uuid.UUID `json:"order_id"`
	CommissionAmount string    `json:"commission_amount"`
}

// ReferralStatusChangedEvent is emitted for every applied referral transition.
type ReferralStatusChangedEvent struct {
	ReferralID       uuid.UUID            `json:"referral_id"`
	AffiliateID      uuid.UUID            `json:"affiliate_id"`
	OrderID          uuid.UUID            `json:"order_id"`
	FromStatus       enums.ReferralStatus `json:"from_status"`
	ToStatus         enums.ReferralStatus `json:"to_status"`
	CommissionAmount string               `json:"commission_amount"`
	PendingDelta     string               `json:"pending_delta"`
	TotalDelta       string               `json:"total_delta"`
	Clamped          bool                 `json:"clamped"`
	OccurredAt       time.Time            `json:"occurred_at"`
}

// AffiliateBalanceRepairedEvent is emitted when a negative balance is reset to zero.
type AffiliateBalanceRepairedEvent struct {
	AffiliateID       uuid.UUID `json:"affiliate_id"`
	PreviousPending   string    `json:"previous_pending"`
	PreviousTotal     string    `json:"previous_total"`
	PendingCommission string    `json:"pending_commission"`
	TotalCommission   string    `json:"total_commission"`
}

// OrderStatusChangedEvent is published by the storefront when an order moves.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	Status  string    `json:"status"`
}
