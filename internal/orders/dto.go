package orders

import (
	"github.com/angelmondragon/storefront-affiliates/pkg/db/models"
	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
	"github.com/google/uuid"
)

// Action names what the bridge did to the linked referral.
type Action string

const (
	ActionNone      Action = "none"
	ActionPaid      Action = "paid"
	ActionCancelled Action = "cancelled"
)

// BridgeResult describes the effect of an order status change.
type BridgeResult struct {
	OrderID  uuid.UUID         `json:"order_id"`
	Status   enums.OrderStatus `json:"status"`
	Action   Action            `json:"action"`
	Referral *models.Referral  `json:"referral,omitempty"`
}
