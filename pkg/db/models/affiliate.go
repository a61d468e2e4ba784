package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Affiliate owns referral commissions and carries the running balances.
type Affiliate struct {
	ID                   uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	AffiliateCode        string          `gorm:"column:affiliate_code;not null"`
	FullName             string          `gorm:"column:full_name;not null"`
	Email                *string         `gorm:"column:email"`
	IsActive             bool            `gorm:"column:is_active;not null"`
	CommissionPercentage decimal.Decimal `gorm:"column:commission_percentage;type:numeric(5,2);not null"`
	PendingCommission    decimal.Decimal `gorm:"column:pending_commission;type:numeric(12,2);not null"`
	TotalCommission      decimal.Decimal `gorm:"column:total_commission;type:numeric(12,2);not null"`
	Version              int64           `gorm:"column:version;not null;default:0"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Affiliate) TableName() string { return "affiliates" }

// LifetimeEarnings is total_commission plus any non-negative pending commission.
func (a Affiliate) LifetimeEarnings() decimal.Decimal {
	return a.TotalCommission.Add(decimal.Max(decimal.Zero, a.PendingCommission))
}
