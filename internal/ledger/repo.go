package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-affiliates/pkg/db/models"
)

// Repository is append-only; events are never updated or deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.CommissionLedgerEvent) error
	ListByReferral(ctx context.Context, referralID uuid.UUID) ([]models.CommissionLedgerEvent, error)
	ListByAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]models.CommissionLedgerEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return gormRepository{db: db}
}

func (r gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return gormRepository{db: tx}
}

func (r gormRepository) Create(ctx context.Context, event *models.CommissionLedgerEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r gormRepository) ListByReferral(ctx context.Context, referralID uuid.UUID) ([]models.CommissionLedgerEvent, error) {
	return r.list(ctx, matching("referral_id", referralID))
}

func (r gormRepository) ListByAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]models.CommissionLedgerEvent, error) {
	return r.list(ctx, matching("affiliate_id", affiliateID))
}

func (r gormRepository) list(ctx context.Context, filter func(*gorm.DB) *gorm.DB) ([]models.CommissionLedgerEvent, error) {
	var events []models.CommissionLedgerEvent
	err := r.db.WithContext(ctx).Scopes(filter, chronological).Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func matching(column string, id uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where(column+" = ?", id)
	}
}

// chronological breaks created_at ties by id so replays are deterministic.
func chronological(q *gorm.DB) *gorm.DB {
	return q.Order("created_at ASC").Order("id ASC")
}
