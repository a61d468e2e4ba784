package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/storefront-affiliates/internal/commissions"
	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-affiliates/pkg/errors"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
	"github.com/google/uuid"
)

// Bridge keeps referral state in step with the order lifecycle. It holds no
// state of its own and is the only place that pays commissions automatically
// when an order completes.
type Bridge struct {
	repo   Repository
	ledger Ledger
	logg   *logger.Logger
}

// NewBridge wires the order mirror to the commission ledger.
func NewBridge(repo Repository, ledger Ledger, logg *logger.Logger) (*Bridge, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("commission ledger required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Bridge{repo: repo, ledger: ledger, logg: logg}, nil
}

// OnOrderStatusChanged mirrors the new status and applies the matching
// referral transition. A completed order approves a still pending referral
// before paying it. A cancelled order cancels the referral. Every other status
// is mirrored only, except that a paid referral rejects any move away from a
// settled status.
func (b *Bridge) OnOrderStatusChanged(ctx context.Context, orderID uuid.UUID, rawStatus string) (*BridgeResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	status, err := enums.ParseOrderStatus(rawStatus)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status")
	}
	ctx = b.logg.WithFields(ctx, map[string]any{
		"order_id":     orderID.String(),
		"order_status": string(status),
	})

	ref, err := b.ledger.ReferralForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	result := &BridgeResult{OrderID: orderID, Status: status, Action: ActionNone, Referral: ref}
	if ref != nil && ref.Status == enums.ReferralStatusPaid && !isSettled(status) {
		b.logg.Warn(b.logg.WithReferralID(ctx, ref.ID.String()), "order reverted after payout")
		return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict,
			fmt.Errorf("%w: order reverted after payout", commissions.ErrInvalidTransition),
			"order reverted after payout")
	}

	if err := b.repo.UpsertStatus(ctx, orderID, status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if ref == nil {
		b.logg.Debug(ctx, "order has no referral")
		return result, nil
	}

	actor := commissions.SystemActor
	switch {
	case status == enums.OrderStatusCompleted:
		if ref.Status == enums.ReferralStatusPending {
			if ref, err = b.ledger.Approve(ctx, ref.ID, actor); err != nil {
				return nil, err
			}
		}
		if ref, err = b.ledger.Pay(ctx, ref.ID, actor); err != nil {
			return nil, err
		}
		result.Action = ActionPaid
	case status.IsCancellation():
		if ref, err = b.ledger.Cancel(ctx, ref.ID, actor); err != nil {
			return nil, err
		}
		result.Action = ActionCancelled
	}
	result.Referral = ref

	b.logg.Info(b.logg.WithField(b.logg.WithReferralID(ctx, ref.ID.String()), "action", string(result.Action)), "order status bridged")
	return result, nil
}

// isSettled reports whether status is one a paid referral may observe.
func isSettled(status enums.OrderStatus) bool {
	return status == enums.OrderStatusCompleted || status.IsCancellation()
}

// IsPermanent reports whether redelivering the same event cannot succeed.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, commissions.ErrInvalidTransition) || errors.Is(err, commissions.ErrNotFound) {
		return true
	}
	return !pkgerrors.Retryable(err)
}
