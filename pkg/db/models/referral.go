package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
)

// Referral is the commission earned by an affiliate for a single order.
// CommissionAmount is frozen at creation.
type Referral struct {
	ID                       uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	AffiliateID              uuid.UUID            `gorm:"column:affiliate_id;type:uuid;not null"`
	OrderID                  uuid.UUID            `gorm:"column:order_id;type:uuid;not null"`
	OrderTotal               decimal.Decimal      `gorm:"column:order_total;type:numeric(12,2);not null"`
	CommissionPercentage     decimal.Decimal      `gorm:"column:commission_percentage;type:numeric(5,2);not null"`
	CommissionAmount         decimal.Decimal      `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	Status                   enums.ReferralStatus `gorm:"column:status;not null"`
	CommissionAddedToPending bool                 `gorm:"column:commission_added_to_pending;not null;default:false"`
	CommissionPaid           bool                 `gorm:"column:commission_paid;not null;default:false"`
	CommissionReversed       bool                 `gorm:"column:commission_reversed;not null;default:false"`
	CommissionReversedAt     *time.Time           `gorm:"column:commission_reversed_at"`
	ApprovedAt               *time.Time           `gorm:"column:approved_at"`
	PaidAt                   *time.Time           `gorm:"column:paid_at"`
	CreatedAt                time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (Referral) TableName() string { return "referrals" }
