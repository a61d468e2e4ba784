package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
)

// Order mirrors the storefront order status used by the payout gate.
type Order struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Status    enums.OrderStatus `gorm:"column:status;not null"`
	Total     decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }
