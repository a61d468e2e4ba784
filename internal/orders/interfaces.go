package orders

import (
	"context"

	"github.com/angelmondragon/storefront-affiliates/internal/commissions"
	"github.com/angelmondragon/storefront-affiliates/pkg/db/models"
	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists the local order status mirror.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpsertStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
}

// Ledger is the part of the commission ledger the bridge drives.
type Ledger interface {
	ReferralForOrder(ctx context.Context, orderID uuid.UUID) (*models.Referral, error)
	Approve(ctx context.Context, referralID uuid.UUID, actor commissions.Actor) (*models.Referral, error)
	Pay(ctx context.Context, referralID uuid.UUID, actor commissions.Actor) (*models.Referral, error)
	Cancel(ctx context.Context, referralID uuid.UUID, actor commissions.Actor) (*models.Referral, error)
}
