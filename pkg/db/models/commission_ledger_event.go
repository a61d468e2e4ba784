package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
)

// CommissionLedgerEvent is an append-only record of one balance-affecting change.
type CommissionLedgerEvent struct {
	ID           uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	ReferralID   *uuid.UUID                `gorm:"column:referral_id;type:uuid"`
	AffiliateID  uuid.UUID                 `gorm:"column:affiliate_id;type:uuid;not null"`
	Type         enums.CommissionEventType `gorm:"column:type;not null"`
	FromStatus   *enums.ReferralStatus     `gorm:"column:from_status"`
	ToStatus     *enums.ReferralStatus     `gorm:"column:to_status"`
	PendingDelta decimal.Decimal           `gorm:"column:pending_delta;type:numeric(12,2);not null"`
	TotalDelta   decimal.Decimal           `gorm:"column:total_delta;type:numeric(12,2);not null"`
	Clamped      bool                      `gorm:"column:clamped;not null;default:false"`
	ActorID      *string                   `gorm:"column:actor_id"`
	CreatedAt    time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

func (CommissionLedgerEvent) TableName() string { return "commission_ledger_events" }
