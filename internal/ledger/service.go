package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-affiliates/pkg/db/models"
	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service records the commission audit trail.
type Service interface {
	RecordEvent(ctx context.Context, tx *gorm.DB, input RecordEventInput) (*models.CommissionLedgerEvent, error)
	ListByReferral(ctx context.Context, referralID uuid.UUID) ([]models.CommissionLedgerEvent, error)
	ListByAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]models.CommissionLedgerEvent, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// RecordEventInput captures the immutable data a ledger event requires.
// ReferralID is nil for affiliate-level repairs.
type RecordEventInput struct {
	ReferralID   *uuid.UUID
	AffiliateID  uuid.UUID
	Type         enums.CommissionEventType
	FromStatus   *enums.ReferralStatus
	ToStatus     *enums.ReferralStatus
	PendingDelta decimal.Decimal
	TotalDelta   decimal.Decimal
	Clamped      bool
	ActorID      string
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// RecordEvent appends an event. When tx is non-nil the row joins that transaction.
func (s *service) RecordEvent(ctx context.Context, tx *gorm.DB, input RecordEventInput) (*models.CommissionLedgerEvent, error) {
	if input.AffiliateID == uuid.Nil {
		return nil, fmt.Errorf("affiliate id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid commission event type %q", input.Type)
	}
	if input.Type != enums.CommissionEventRepaired && (input.ReferralID == nil || *input.ReferralID == uuid.Nil) {
		return nil, fmt.Errorf("referral id is required for %s events", input.Type)
	}

	event := &models.CommissionLedgerEvent{
		ID:           uuid.New(),
		ReferralID:   input.ReferralID,
		AffiliateID:  input.AffiliateID,
		Type:         input.Type,
		FromStatus:   input.FromStatus,
		ToStatus:     input.ToStatus,
		PendingDelta: input.PendingDelta.Round(2),
		TotalDelta:   input.TotalDelta.Round(2),
		Clamped:      input.Clamped,
		CreatedAt:    s.now().UTC(),
	}
	if input.ActorID != "" {
		actor := input.ActorID
		event.ActorID = &actor
	}

	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) ListByReferral(ctx context.Context, referralID uuid.UUID) ([]models.CommissionLedgerEvent, error) {
	if referralID == uuid.Nil {
		return nil, fmt.Errorf("referral id is required")
	}
	return s.repo.ListByReferral(ctx, referralID)
}

func (s *service) ListByAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]models.CommissionLedgerEvent, error) {
	if affiliateID == uuid.Nil {
		return nil, fmt.Errorf("affiliate id is required")
	}
	return s.repo.ListByAffiliate(ctx, affiliateID)
}

// EventTypeFor maps a referral transition target to the audit event type.
func EventTypeFor(to enums.ReferralStatus) (enums.CommissionEventType, bool) {
	switch to {
	case enums.ReferralStatusApproved:
		return enums.CommissionEventAccrued, true
	case enums.ReferralStatusPaid:
		return enums.CommissionEventPaid, true
	case enums.ReferralStatusCancelled:
		return enums.CommissionEventReversed, true
	default:
		return "", false
	}
}
