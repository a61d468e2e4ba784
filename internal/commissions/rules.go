package commissions

import (
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-affiliates/pkg/db/models"
	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
	"github.com/shopspring/decimal"
)

// Balance field names, as reported when a clamp fires.
const (
	FieldPending = "pending_commission"
	FieldTotal   = "total_commission"
)

var hundred = decimal.NewFromInt(100)

// OrderGate is the payout precondition: the linked order must be completed.
type OrderGate struct {
	Found  bool
	Status enums.OrderStatus
}

// Open reports whether a payout may proceed.
func (g OrderGate) Open() bool {
	return g.Found && g.Status == enums.OrderStatusCompleted
}

// BalanceDelta is the signed change a transition requests on the affiliate balances.
type BalanceDelta struct {
	Pending decimal.Decimal
	Total   decimal.Decimal
}

// IsZero reports whether the delta leaves both balances untouched.
func (d BalanceDelta) IsZero() bool {
	return d.Pending.IsZero() && d.Total.IsZero()
}

// Outcome is the result of planning a transition. Referral holds the
// post-transition row; when Noop is set it equals the input.
type Outcome struct {
	From     enums.ReferralStatus
	To       enums.ReferralStatus
	Referral models.Referral
	Delta    BalanceDelta
	Noop     bool
}

// Plan decides how ref moves to target. It never touches storage.
//
// Pay guards run in a fixed order: already paid, then wrong state, then the
// order gate.
func Plan(ref models.Referral, target enums.ReferralStatus, gate OrderGate, now time.Time) (Outcome, error) {
	out := Outcome{From: ref.Status, To: target, Referral: ref}
	next := &out.Referral
	amount := ref.CommissionAmount

	switch target {
	case enums.ReferralStatusApproved:
		switch ref.Status {
		case enums.ReferralStatusApproved:
			out.Noop = true
			return out, nil
		case enums.ReferralStatusPending:
		default:
			return Outcome{}, invalidTransition(ref.Status, target)
		}
		if !ref.CommissionAddedToPending {
			out.Delta.Pending = amount
		}
		next.Status = enums.ReferralStatusApproved
		next.CommissionAddedToPending = true
		next.ApprovedAt = timePtr(now)

	case enums.ReferralStatusPaid:
		if ref.CommissionPaid {
			return Outcome{}, ErrAlreadyPaid
		}
		if ref.Status != enums.ReferralStatusApproved {
			return Outcome{}, invalidTransition(ref.Status, target)
		}
		if !gate.Open() {
			return Outcome{}, ErrPayoutNotReady
		}
		out.Delta.Total = amount
		if ref.CommissionAddedToPending {
			out.Delta.Pending = amount.Neg()
		}
		next.Status = enums.ReferralStatusPaid
		next.CommissionPaid = true
		next.PaidAt = timePtr(now)

	case enums.ReferralStatusCancelled:
		switch ref.Status {
		case enums.ReferralStatusCancelled:
			out.Noop = true
			return out, nil
		case enums.ReferralStatusPending, enums.ReferralStatusApproved, enums.ReferralStatusPaid:
		default:
			return Outcome{}, invalidTransition(ref.Status, target)
		}
		switch {
		case ref.CommissionPaid:
			out.Delta.Total = amount.Neg()
		case ref.CommissionAddedToPending:
			out.Delta.Pending = amount.Neg()
		}
		next.Status = enums.ReferralStatusCancelled
		next.CommissionReversed = true
		next.CommissionReversedAt = timePtr(now)

	default:
		return Outcome{}, invalidTransition(ref.Status, target)
	}

	next.UpdatedAt = now
	return out, nil
}

// AppliedBalances are the affiliate balances after a delta has been applied.
type AppliedBalances struct {
	Pending decimal.Decimal
	Total   decimal.Decimal
}

// Delta returns the change actually applied relative to aff, which differs
// from the requested delta when a clamp fired.
func (b AppliedBalances) Delta(aff models.Affiliate) BalanceDelta {
	return BalanceDelta{
		Pending: b.Pending.Sub(aff.PendingCommission),
		Total:   b.Total.Sub(aff.TotalCommission),
	}
}

// ApplyDelta adds delta to the affiliate balances. Subtractions floor at zero;
// the names of clamped fields are returned.
func ApplyDelta(aff models.Affiliate, delta BalanceDelta) (AppliedBalances, []string) {
	var clamped []string
	pending, hit := applyField(aff.PendingCommission, delta.Pending)
	if hit {
		clamped = append(clamped, FieldPending)
	}
	total, hit := applyField(aff.TotalCommission, delta.Total)
	if hit {
		clamped = append(clamped, FieldTotal)
	}
	return AppliedBalances{Pending: pending, Total: total}, clamped
}

func applyField(current, delta decimal.Decimal) (decimal.Decimal, bool) {
	next := current.Add(delta).Round(2)
	if delta.IsNegative() && next.IsNegative() {
		return decimal.Zero, true
	}
	return next, false
}

// CommissionFor computes the frozen commission for an order total at pct percent.
func CommissionFor(total, pct decimal.Decimal) decimal.Decimal {
	return total.Mul(pct).Div(hundred).Round(2)
}

func invalidTransition(from, to enums.ReferralStatus) error {
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
