package commissions

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-affiliates/pkg/db/models"
	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
	"github.com/angelmondragon/storefront-affiliates/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReferralUpdate is a compare-and-swap write: it applies only while the row
// still has ExpectStatus and ExpectPaid.
type ReferralUpdate struct {
	ID           uuid.UUID
	ExpectStatus enums.ReferralStatus
	ExpectPaid   bool
	Next         models.Referral
}

// Repository is the referral and affiliate balance store.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	GetReferral(ctx context.Context, id uuid.UUID) (*models.Referral, error)
	GetReferralByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Referral, error)
	CreateReferral(ctx context.Context, referral *models.Referral) error
	UpdateReferral(ctx context.Context, update ReferralUpdate) error
	ListReferralsByAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]models.Referral, error)
	ListReferralsPage(ctx context.Context, affiliateID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Referral, error)

	GetAffiliate(ctx context.Context, id uuid.UUID) (*models.Affiliate, error)
	// GetAffiliateForShare reads the affiliate and holds a share lock on the
	// row until the surrounding transaction ends.
	GetAffiliateForShare(ctx context.Context, id uuid.UUID) (*models.Affiliate, error)
	GetAffiliateByCode(ctx context.Context, code string) (*models.Affiliate, error)
	CreateAffiliate(ctx context.Context, affiliate *models.Affiliate) error
	UpdateAffiliateBalances(ctx context.Context, id uuid.UUID, version int64, pending, total decimal.Decimal) error
	ListAffiliates(ctx context.Context) ([]models.Affiliate, error)

	GetOrderStatus(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error)
	EnsureOrder(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a commissions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetReferral(ctx context.Context, id uuid.UUID) (*models.Referral, error) {
	var referral models.Referral
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&referral).Error; err != nil {
		return nil, err
	}
	return &referral, nil
}

func (r *repository) GetReferralByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Referral, error) {
	var referral models.Referral
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&referral).Error; err != nil {
		return nil, err
	}
	return &referral, nil
}

func (r *repository) CreateReferral(ctx context.Context, referral *models.Referral) error {
	return r.db.WithContext(ctx).Create(referral).Error
}

func (r *repository) UpdateReferral(ctx context.Context, update ReferralUpdate) error {
	next := update.Next
	res := r.db.WithContext(ctx).
		Model(&models.Referral{}).
		Where("id = ? AND status = ? AND commission_paid = ?", update.ID, update.ExpectStatus, update.ExpectPaid).
		Updates(map[string]any{
			"status":                      next.Status,
			"commission_added_to_pending": next.CommissionAddedToPending,
			"commission_paid":             next.CommissionPaid,
			"commission_reversed":         next.CommissionReversed,
			"commission_reversed_at":      next.CommissionReversedAt,
			"approved_at":                 next.ApprovedAt,
			"paid_at":                     next.PaidAt,
			"updated_at":                  next.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

func (r *repository) ListReferralsByAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]models.Referral, error) {
	var referrals []models.Referral
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&referrals).Error
	if err != nil {
		return nil, err
	}
	return referrals, nil
}

func (r *repository) ListReferralsPage(ctx context.Context, affiliateID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Referral, error) {
	query := r.db.WithContext(ctx).Where("affiliate_id = ?", affiliateID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var referrals []models.Referral
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&referrals).Error
	if err != nil {
		return nil, err
	}
	return referrals, nil
}

func (r *repository) GetAffiliate(ctx context.Context, id uuid.UUID) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&affiliate).Error; err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (r *repository) GetAffiliateForShare(ctx context.Context, id uuid.UUID) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthShare}).
		Where("id = ?", id).
		First(&affiliate).Error; err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (r *repository) GetAffiliateByCode(ctx context.Context, code string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if err := r.db.WithContext(ctx).Where("affiliate_code = ?", code).First(&affiliate).Error; err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (r *repository) CreateAffiliate(ctx context.Context, affiliate *models.Affiliate) error {
	return r.db.WithContext(ctx).Create(affiliate).Error
}

func (r *repository) UpdateAffiliateBalances(ctx context.Context, id uuid.UUID, version int64, pending, total decimal.Decimal) error {
	res := r.db.WithContext(ctx).
		Model(&models.Affiliate{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]any{
			"pending_commission": pending,
			"total_commission":   total,
			"version":            version + 1,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

func (r *repository) ListAffiliates(ctx context.Context) ([]models.Affiliate, error) {
	var affiliates []models.Affiliate
	err := r.db.WithContext(ctx).
		Order("affiliate_code ASC").
		Find(&affiliates).Error
	if err != nil {
		return nil, err
	}
	return affiliates, nil
}

func (r *repository) GetOrderStatus(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Select("id", "status").Where("id = ?", orderID).First(&order).Error; err != nil {
		return "", err
	}
	return order.Status, nil
}

// EnsureOrder inserts a pending mirror row for orderID unless one already exists.
func (r *repository) EnsureOrder(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error {
	now := time.Now().UTC()
	order := models.Order{
		ID:        orderID,
		Status:    enums.OrderStatusPending,
		Total:     total,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&order).Error
}
