package commissions

import (
	"github.com/angelmondragon/storefront-affiliates/pkg/outbox"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Actor identifies who triggered a ledger command.
type Actor struct {
	Subject string
	Role    string
}

// SystemActor is used for transitions driven by order status events.
var SystemActor = Actor{Subject: "order-status-bridge", Role: "system"}

func (a Actor) ref() *outbox.ActorRef {
	if a.Subject == "" {
		return nil
	}
	return &outbox.ActorRef{Subject: a.Subject, Role: a.Role}
}

// RecordReferralInput is what checkout reports when an order carries an affiliate code.
type RecordReferralInput struct {
	OrderID       uuid.UUID
	AffiliateCode string
	OrderTotal    decimal.Decimal
}

// CreateAffiliateInput captures affiliate signup data. A nil
// CommissionPercentage selects the configured default.
type CreateAffiliateInput struct {
	Code                 string
	FullName             string
	Email                string
	CommissionPercentage *decimal.Decimal
}

// RepairResult summarises a negative balance repair pass.
type RepairResult struct {
	Scanned  int             `json:"scanned"`
	Repaired []RepairedEntry `json:"repaired"`
}

// RepairedEntry describes one affiliate whose balances were reset.
type RepairedEntry struct {
	AffiliateID     uuid.UUID       `json:"affiliate_id"`
	AffiliateCode   string          `json:"affiliate_code"`
	PreviousPending decimal.Decimal `json:"previous_pending"`
	PreviousTotal   decimal.Decimal `json:"previous_total"`
}
