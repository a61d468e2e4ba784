package enums

import "strings"

// OrderStatus mirrors the storefront order status this service is notified about.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return known(s, orderStatuses) }

// IsCancellation reports whether the status voids the order's commission.
// Refunds are mirrored only.
func (s OrderStatus) IsCancellation() bool {
	return s == OrderStatusCancelled
}

// ParseOrderStatus trims and lower-cases input and accepts "canceled".
func ParseOrderStatus(value string) (OrderStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "canceled" {
		normalized = string(OrderStatusCancelled)
	}
	return parse("order status", value, normalized, orderStatuses)
}
