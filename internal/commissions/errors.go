package commissions

import (
	"errors"

	pkgerrors "github.com/angelmondragon/storefront-affiliates/pkg/errors"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrPayoutNotReady     = errors.New("payout not ready: order is not completed")
	ErrAlreadyPaid        = errors.New("commission already paid")
	ErrInvalidTransition  = errors.New("invalid referral transition")
	ErrStoreUnavailable   = errors.New("commission store unavailable")
	ErrConcurrentUpdate   = errors.New("concurrent update")
	ErrAffiliateInactive  = errors.New("affiliate is inactive")
	ErrDuplicateReferral  = errors.New("referral already recorded for order")
	ErrDuplicateAffiliate = errors.New("affiliate code already exists")
	ErrInvalidInput       = errors.New("invalid input")
)

// toAPIError wraps a ledger sentinel into the typed transport error while
// keeping the sentinel reachable through errors.Is.
func toAPIError(err error) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, err.Error())
	case errors.Is(err, ErrPayoutNotReady):
		return pkgerrors.Wrap(pkgerrors.CodePayoutNotReady, err, "order must be completed before payout")
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAffiliateInactive):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, err.Error())
	case errors.Is(err, ErrDuplicateReferral), errors.Is(err, ErrDuplicateAffiliate):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, err.Error())
	case errors.Is(err, ErrConcurrentUpdate):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "referral was modified concurrently, retry the request")
	case errors.Is(err, ErrInvalidInput):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	case errors.Is(err, ErrStoreUnavailable):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commission store unavailable")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected commission ledger error")
	}
}
