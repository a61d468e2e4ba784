package enums

// ReferralStatus is the lifecycle state of a referral commission.
// Pending and approved referrals hold their amount in pending_commission;
// paid referrals have moved it to total_commission.
type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusApproved  ReferralStatus = "approved"
	ReferralStatusPaid      ReferralStatus = "paid"
	ReferralStatusCancelled ReferralStatus = "cancelled"
)

var referralStatuses = []ReferralStatus{
	ReferralStatusPending,
	ReferralStatusApproved,
	ReferralStatusPaid,
	ReferralStatusCancelled,
}

func (s ReferralStatus) String() string { return string(s) }

func (s ReferralStatus) IsValid() bool { return known(s, referralStatuses) }

// ParseReferralStatus is case sensitive.
func ParseReferralStatus(value string) (ReferralStatus, error) {
	return parse("referral status", value, value, referralStatuses)
}
