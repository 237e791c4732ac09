package models

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether the status ends an order's lifecycle.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFulfilled || s == OrderStatusCancelled
}

// ParseOrderStatus resolves a client-supplied status string. "completed" is
// accepted as an alias for fulfilled (older clients of the legacy
// single-order endpoint use it).
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusFulfilled, OrderStatusCancelled:
		return OrderStatus(s), true
	case OrderStatus("completed"):
		return OrderStatusFulfilled, true
	}
	return "", false
}

type HistoryOutcome string

const (
	HistoryOutcomeFulfilled HistoryOutcome = "fulfilled"
	HistoryOutcomeCancelled HistoryOutcome = "cancelled"
)

type AuditAction string

const (
	AuditActionInventoryIncrease AuditAction = "inventory_increase"
	AuditActionInventoryDecrease AuditAction = "inventory_decrease"
	AuditActionOrderCreated      AuditAction = "order_created"
	AuditActionOrderFulfilled    AuditAction = "order_fulfilled"
	AuditActionOrderCancelled    AuditAction = "order_cancelled"
)
