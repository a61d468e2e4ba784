package enums

// OutboxAggregateType names the row an outbox event describes.
type OutboxAggregateType string

const (
	AggregateReferral  OutboxAggregateType = "referral"
	AggregateAffiliate OutboxAggregateType = "affiliate"
)

var aggregateTypes = []OutboxAggregateType{AggregateReferral, AggregateAffiliate}

func (a OutboxAggregateType) IsValid() bool { return known(a, aggregateTypes) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, value, aggregateTypes)
}

// OutboxEventType is the event_type attribute on published commission events.
type OutboxEventType string

const (
	EventReferralCreated          OutboxEventType = "referral_created"
	EventReferralStatusChanged    OutboxEventType = "referral_status_changed"
	EventAffiliateBalanceRepaired OutboxEventType = "affiliate_balance_repaired"
	EventOrderStatusChanged       OutboxEventType = "order_status_changed"
)

var eventTypes = []OutboxEventType{
	EventReferralCreated,
	EventReferralStatusChanged,
	EventAffiliateBalanceRepaired,
	EventOrderStatusChanged,
}

func (e OutboxEventType) IsValid() bool { return known(e, eventTypes) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, value, eventTypes)
}
