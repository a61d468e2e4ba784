package commissions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-affiliates/internal/ledger"
	"github.com/angelmondragon/storefront-affiliates/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-affiliates/pkg/db"
	"github.com/angelmondragon/storefront-affiliates/pkg/db/models"
	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
	"github.com/angelmondragon/storefront-affiliates/pkg/metrics"
	"github.com/angelmondragon/storefront-affiliates/pkg/outbox"
	"github.com/angelmondragon/storefront-affiliates/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-affiliates/pkg/pagination"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the commission ledger dependencies.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Ledger  ledger.Service
	Outbox  outbox.Emitter
	Logger  *logger.Logger
	Metrics *metrics.CommissionMetrics
	Config  config.CommissionsConfig
	Now     func() time.Time
}

// Service applies referral transitions and their balance effects atomically.
type Service struct {
	repo    Repository
	tx      txRunner
	ledger  ledger.Service
	outbox  outbox.Emitter
	logg    *logger.Logger
	metrics *metrics.CommissionMetrics
	cfg     config.CommissionsConfig
	now     func() time.Time
}

// NewService validates the dependencies and builds a Service.
func NewService(p ServiceParams) (*Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("commissions repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:    p.Repo,
		tx:      p.Tx,
		ledger:  p.Ledger,
		outbox:  p.Outbox,
		logg:    p.Logger,
		metrics: p.Metrics,
		cfg:     p.Config,
		now:     func() time.Time { return now().UTC() },
	}, nil
}

// Approve moves a pending referral to approved and accrues its commission into
// pending_commission. Approving an approved referral is a no-op.
func (s *Service) Approve(ctx context.Context, referralID uuid.UUID, actor Actor) (*models.Referral, error) {
	return s.transition(ctx, referralID, enums.ReferralStatusApproved, actor)
}

// Pay moves an approved referral to paid once its order has completed.
func (s *Service) Pay(ctx context.Context, referralID uuid.UUID, actor Actor) (*models.Referral, error) {
	return s.transition(ctx, referralID, enums.ReferralStatusPaid, actor)
}

// Cancel voids a referral and reverses whatever it contributed to the balances.
func (s *Service) Cancel(ctx context.Context, referralID uuid.UUID, actor Actor) (*models.Referral, error) {
	return s.transition(ctx, referralID, enums.ReferralStatusCancelled, actor)
}

// Transition applies target to the referral; the bridge uses it directly.
func (s *Service) Transition(ctx context.Context, referralID uuid.UUID, target enums.ReferralStatus, actor Actor) (*models.Referral, error) {
	return s.transition(ctx, referralID, target, actor)
}

func (s *Service) transition(ctx context.Context, referralID uuid.UUID, target enums.ReferralStatus, actor Actor) (*models.Referral, error) {
	if referralID == uuid.Nil {
		return nil, toAPIError(fmt.Errorf("%w: referral id required", ErrInvalidInput))
	}
	kind := transitionKind(target)
	ctx = s.logg.WithReferralID(ctx, referralID.String())
	ctx = s.logg.WithField(ctx, "transition", kind)

	var result *models.Referral
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		ref, err := s.attempt(ctx, referralID, target, actor)
		if err == nil {
			result = ref
			return nil
		}
		if errors.Is(err, ErrConcurrentUpdate) {
			s.metrics.IncConflict()
			s.logg.Debug(ctx, "referral transition lost optimistic update, retrying")
			return retry.RetryableError(err)
		}
		if isDomainError(err) {
			return err
		}
		return s.resolveUnknown(ctx, referralID, target, err, &result)
	})
	if err != nil {
		outcome := metrics.ResultRejected
		if !isDomainError(err) || errors.Is(err, ErrConcurrentUpdate) || errors.Is(err, ErrStoreUnavailable) {
			outcome = metrics.ResultFailed
		}
		s.metrics.IncTransition(kind, outcome)
		if outcome == metrics.ResultFailed {
			s.logg.Error(ctx, "referral transition failed", err)
		}
		return nil, toAPIError(err)
	}
	return result, nil
}

// resolveUnknown handles a write whose outcome is unknown. It re-reads the
// referral: already at target counts as success, an unchanged precondition
// is retried, anything else is reported as store unavailable.
func (s *Service) resolveUnknown(ctx context.Context, referralID uuid.UUID, target enums.ReferralStatus, cause error, result **models.Referral) error {
	s.logg.Warn(s.logg.WithField(ctx, "error", cause.Error()), "referral transition outcome unknown, re-reading state")
	current, err := s.repo.GetReferral(ctx, referralID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, cause)
	}
	if current.Status == target {
		*result = current
		return nil
	}
	if _, planErr := Plan(*current, target, OrderGate{Found: true, Status: enums.OrderStatusCompleted}, s.now()); planErr == nil {
		return retry.RetryableError(fmt.Errorf("%w: %v", ErrStoreUnavailable, cause))
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, cause)
}

// attempt runs one read-plan-write cycle inside a single transaction.
func (s *Service) attempt(ctx context.Context, referralID uuid.UUID, target enums.ReferralStatus, actor Actor) (*models.Referral, error) {
	var (
		current *models.Referral
		outcome Outcome
		applied BalanceDelta
		clamped []string
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ref, err := repo.GetReferral(ctx, referralID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return fmt.Errorf("%w: referral %s", ErrNotFound, referralID)
			}
			return err
		}
		current = ref

		gate := OrderGate{}
		if target == enums.ReferralStatusPaid {
			status, err := repo.GetOrderStatus(ctx, ref.OrderID)
			switch {
			case err == nil:
				gate = OrderGate{Found: true, Status: status}
			case !dbpkg.IsNotFound(err):
				return err
			}
		}

		outcome, err = Plan(*ref, target, gate, s.now())
		if err != nil || outcome.Noop {
			return err
		}

		aff, err := repo.GetAffiliate(ctx, ref.AffiliateID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return fmt.Errorf("%w: affiliate %s", ErrNotFound, ref.AffiliateID)
			}
			return err
		}

		if err := repo.UpdateReferral(ctx, ReferralUpdate{
			ID:           ref.ID,
			ExpectStatus: ref.Status,
			ExpectPaid:   ref.CommissionPaid,
			Next:         outcome.Referral,
		}); err != nil {
			return err
		}

		var balances AppliedBalances
		balances, clamped = ApplyDelta(*aff, outcome.Delta)
		applied = balances.Delta(*aff)
		if !outcome.Delta.IsZero() {
			if err := repo.UpdateAffiliateBalances(ctx, aff.ID, aff.Version, balances.Pending, balances.Total); err != nil {
				return err
			}
		}

		eventType, _ := ledger.EventTypeFor(target)
		from, to := outcome.From, outcome.To
		if _, err := s.ledger.RecordEvent(ctx, tx, ledger.RecordEventInput{
			ReferralID:   &ref.ID,
			AffiliateID:  ref.AffiliateID,
			Type:         eventType,
			FromStatus:   &from,
			ToStatus:     &to,
			PendingDelta: applied.Pending,
			TotalDelta:   applied.Total,
			Clamped:      len(clamped) > 0,
			ActorID:      actor.Subject,
		}); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReferralStatusChanged,
			AggregateType: enums.AggregateReferral,
			AggregateID:   ref.ID,
			Version:       1,
			Actor:         actor.ref(),
			OccurredAt:    outcome.Referral.UpdatedAt,
			Data: payloads.ReferralStatusChangedEvent{
				ReferralID:       ref.ID,
				AffiliateID:      ref.AffiliateID,
				OrderID:          ref.OrderID,
				FromStatus:       from,
				ToStatus:         to,
				CommissionAmount: ref.CommissionAmount.StringFixed(2),
				PendingDelta:     applied.Pending.StringFixed(2),
				TotalDelta:       applied.Total.StringFixed(2),
				Clamped:          len(clamped) > 0,
				OccurredAt:       outcome.Referral.UpdatedAt,
			},
		})
	})

	kind := transitionKind(target)
	switch {
	case errors.Is(err, ErrAlreadyPaid):
		s.metrics.IncTransition(kind, metrics.ResultNoop)
		s.logg.Warn(s.logg.WithField(ctx, "status", current.Status), "referral already paid")
		return current, nil
	case err != nil:
		return nil, err
	case outcome.Noop:
		s.metrics.IncTransition(kind, metrics.ResultNoop)
		s.logg.Info(s.logg.WithField(ctx, "status", current.Status), "referral transition skipped")
		return current, nil
	}

	logCtx := s.logg.WithAffiliateID(ctx, current.AffiliateID.String())
	for _, field := range clamped {
		s.metrics.IncClamp(field)
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"field":  field,
			"amount": current.CommissionAmount.StringFixed(2),
		}), "commission balance clamped at zero")
	}
	s.metrics.IncTransition(kind, metrics.ResultApplied)
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"from":          outcome.From,
		"to":            outcome.To,
		"pending_delta": applied.Pending.StringFixed(2),
		"total_delta":   applied.Total.StringFixed(2),
	}), "referral transition applied")

	updated := outcome.Referral
	return &updated, nil
}

// RecordReferral creates a pending referral for an order placed with an
// affiliate code. The commission amount is computed once and frozen.
func (s *Service) RecordReferral(ctx context.Context, input RecordReferralInput) (*models.Referral, error) {
	code := normalizeCode(input.AffiliateCode)
	switch {
	case input.OrderID == uuid.Nil:
		return nil, toAPIError(fmt.Errorf("%w: order id required", ErrInvalidInput))
	case code == "":
		return nil, toAPIError(fmt.Errorf("%w: affiliate code required", ErrInvalidInput))
	case !input.OrderTotal.IsPositive():
		return nil, toAPIError(fmt.Errorf("%w: order total must be positive", ErrInvalidInput))
	}

	var referral *models.Referral
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		aff, err := repo.GetAffiliateByCode(ctx, code)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return fmt.Errorf("%w: affiliate code %s", ErrNotFound, code)
			}
			return err
		}
		if !aff.IsActive {
			return ErrAffiliateInactive
		}
		if _, err := repo.GetReferralByOrderID(ctx, input.OrderID); err == nil {
			return ErrDuplicateReferral
		} else if !dbpkg.IsNotFound(err) {
			return err
		}

		// The stored rate always wins, including an explicit 0%.
		pct := aff.CommissionPercentage
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			pct = s.cfg.DefaultRate()
		}
		total := input.OrderTotal.Round(2)
		now := s.now()
		referral = &models.Referral{
			ID:                   uuid.New(),
			AffiliateID:          aff.ID,
			OrderID:              input.OrderID,
			OrderTotal:           total,
			CommissionPercentage: pct,
			CommissionAmount:     CommissionFor(total, pct),
			Status:               enums.ReferralStatusPending,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := repo.CreateReferral(ctx, referral); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_referrals_order_id", "referrals.order_id") {
				return ErrDuplicateReferral
			}
			return err
		}
		if err := repo.EnsureOrder(ctx, input.OrderID, total); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReferralCreated,
			AggregateType: enums.AggregateReferral,
			AggregateID:   referral.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.ReferralCreatedEvent{
				ReferralID:       referral.ID,
				AffiliateID:      aff.ID,
				OrderID:          input.OrderID,
				CommissionAmount: referral.CommissionAmount.StringFixed(2),
			},
		})
	})
	if err != nil {
		return nil, toAPIError(storeError(err))
	}

	logCtx := s.logg.WithReferralID(s.logg.WithAffiliateID(ctx, referral.AffiliateID.String()), referral.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "commission_amount", referral.CommissionAmount.StringFixed(2)), "referral recorded")
	return referral, nil
}

// CreateAffiliate registers an affiliate with zeroed balances.
func (s *Service) CreateAffiliate(ctx context.Context, input CreateAffiliateInput) (*models.Affiliate, error) {
	code := normalizeCode(input.Code)
	name := strings.TrimSpace(input.FullName)
	switch {
	case code == "":
		return nil, toAPIError(fmt.Errorf("%w: affiliate code required", ErrInvalidInput))
	case name == "":
		return nil, toAPIError(fmt.Errorf("%w: full name required", ErrInvalidInput))
	}
	pct := s.cfg.DefaultRate()
	if input.CommissionPercentage != nil {
		pct = input.CommissionPercentage.Round(2)
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return nil, toAPIError(fmt.Errorf("%w: commission percentage must be between 0 and 100", ErrInvalidInput))
		}
	}

	now := s.now()
	affiliate := &models.Affiliate{
		ID:                   uuid.New(),
		AffiliateCode:        code,
		FullName:             name,
		IsActive:             true,
		CommissionPercentage: pct,
		PendingCommission:    decimal.Zero,
		TotalCommission:      decimal.Zero,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if email := strings.TrimSpace(input.Email); email != "" {
		affiliate.Email = &email
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.GetAffiliateByCode(ctx, code); err == nil {
			return ErrDuplicateAffiliate
		} else if !dbpkg.IsNotFound(err) {
			return err
		}
		if err := repo.CreateAffiliate(ctx, affiliate); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_affiliates_code", "affiliates.affiliate_code") {
				return ErrDuplicateAffiliate
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, toAPIError(storeError(err))
	}
	s.logg.Info(s.logg.WithAffiliateID(ctx, affiliate.ID.String()), "affiliate created")
	return affiliate, nil
}

// GetReferral loads a referral by id.
func (s *Service) GetReferral(ctx context.Context, referralID uuid.UUID) (*models.Referral, error) {
	var ref *models.Referral
	err := s.read(ctx, func(ctx context.Context) error {
		found, err := s.repo.GetReferral(ctx, referralID)
		if err != nil {
			return err
		}
		ref = found
		return nil
	})
	if err != nil {
		return nil, toAPIError(notFoundAs(err, "referral"))
	}
	return ref, nil
}

// ReferralForOrder returns the referral recorded for orderID, or nil when the
// order carried no affiliate code.
func (s *Service) ReferralForOrder(ctx context.Context, orderID uuid.UUID) (*models.Referral, error) {
	var ref *models.Referral
	err := s.read(ctx, func(ctx context.Context) error {
		found, err := s.repo.GetReferralByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		ref = found
		return nil
	})
	if dbpkg.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, toAPIError(err)
	}
	return ref, nil
}

// ReferralHistory returns the audit trail of a referral, oldest first.
func (s *Service) ReferralHistory(ctx context.Context, referralID uuid.UUID) ([]models.CommissionLedgerEvent, error) {
	var events []models.CommissionLedgerEvent
	err := s.read(ctx, func(ctx context.Context) error {
		found, err := s.ledger.ListByReferral(ctx, referralID)
		if err != nil {
			return err
		}
		events = found
		return nil
	})
	if err != nil {
		return nil, toAPIError(err)
	}
	return events, nil
}

// AffiliateLedger returns every ledger event of an affiliate, oldest first,
// including repairs that carry no referral.
func (s *Service) AffiliateLedger(ctx context.Context, affiliateID uuid.UUID) ([]models.CommissionLedgerEvent, error) {
	if _, err := s.GetAffiliate(ctx, affiliateID); err != nil {
		return nil, err
	}
	var events []models.CommissionLedgerEvent
	err := s.read(ctx, func(ctx context.Context) error {
		found, err := s.ledger.ListByAffiliate(ctx, affiliateID)
		if err != nil {
			return err
		}
		events = found
		return nil
	})
	if err != nil {
		return nil, toAPIError(err)
	}
	return events, nil
}

// GetAffiliate loads an affiliate by id.
func (s *Service) GetAffiliate(ctx context.Context, affiliateID uuid.UUID) (*models.Affiliate, error) {
	var aff *models.Affiliate
	err := s.read(ctx, func(ctx context.Context) error {
		found, err := s.repo.GetAffiliate(ctx, affiliateID)
		if err != nil {
			return err
		}
		aff = found
		return nil
	})
	if err != nil {
		return nil, toAPIError(notFoundAs(err, "affiliate"))
	}
	return aff, nil
}

// ListReferrals pages an affiliate's referrals, newest first.
func (s *Service) ListReferrals(ctx context.Context, affiliateID uuid.UUID, params pagination.Params) ([]models.Referral, pagination.Page, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pagination.Page{}, toAPIError(fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}
	if _, err := s.GetAffiliate(ctx, affiliateID); err != nil {
		return nil, pagination.Page{}, err
	}
	var rows []models.Referral
	err = s.read(ctx, func(ctx context.Context) error {
		found, err := s.repo.ListReferralsPage(ctx, affiliateID, cursor, params.Limit)
		if err != nil {
			return err
		}
		rows = found
		return nil
	})
	if err != nil {
		return nil, pagination.Page{}, toAPIError(err)
	}
	rows, page := pagination.Trim(rows, params.Limit, func(r models.Referral) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return rows, page, nil
}

// read retries idempotent reads on store failures. Not-found is final.
func (s *Service) read(ctx context.Context, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || dbpkg.IsNotFound(err) || errors.Is(err, ErrNotFound) {
			return err
		}
		return retry.RetryableError(fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
	})
	return err
}

func (s *Service) backoff() retry.Backoff {
	attempts := s.cfg.TransitionRetries
	if attempts == 0 {
		attempts = 5
	}
	base := s.cfg.RetryBaseDelay
	if base <= 0 {
		base = 25 * time.Millisecond
	}
	return retry.WithMaxRetries(attempts, retry.NewExponential(base))
}

func transitionKind(target enums.ReferralStatus) string {
	switch target {
	case enums.ReferralStatusApproved:
		return "approve"
	case enums.ReferralStatusPaid:
		return "pay"
	case enums.ReferralStatusCancelled:
		return "cancel"
	default:
		return string(target)
	}
}

func isDomainError(err error) bool {
	for _, sentinel := range []error{
		ErrNotFound,
		ErrPayoutNotReady,
		ErrInvalidTransition,
		ErrConcurrentUpdate,
		ErrStoreUnavailable,
		ErrAffiliateInactive,
		ErrDuplicateReferral,
		ErrDuplicateAffiliate,
		ErrInvalidInput,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// storeError classifies raw driver failures as store unavailability.
func storeError(err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func notFoundAs(err error, what string) error {
	if dbpkg.IsNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
