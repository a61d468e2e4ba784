package enums

// CommissionEventType classifies rows in the commission audit trail.
type CommissionEventType string

const (
	CommissionEventAccrued  CommissionEventType = "accrued"
	CommissionEventPaid     CommissionEventType = "paid"
	CommissionEventReversed CommissionEventType = "reversed"
	// CommissionEventRepaired records a negative balance reset to zero.
	CommissionEventRepaired CommissionEventType = "repaired"
)

var commissionEventTypes = []CommissionEventType{
	CommissionEventAccrued,
	CommissionEventPaid,
	CommissionEventReversed,
	CommissionEventRepaired,
}

func (t CommissionEventType) IsValid() bool { return known(t, commissionEventTypes) }

func ParseCommissionEventType(value string) (CommissionEventType, error) {
	return parse("commission event type", value, value, commissionEventTypes)
}
