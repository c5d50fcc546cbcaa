package domain

import "strings"

// OrderStatus enumerates the fulfillment lifecycle states shared by orders
// and their design orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and awaits handling.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates the order is being prepared or produced.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the carrier reported delivery.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCompleted indicates the order is closed out (terminal).
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was cancelled (terminal).
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusFailed indicates handling failed; the order may be retried.
	OrderStatusFailed OrderStatus = "failed"
	// OrderStatusReturned indicates the customer returned the shipment.
	OrderStatusReturned OrderStatus = "returned"
	// OrderStatusRefunded indicates a return finished with a refund (terminal).
	OrderStatusRefunded OrderStatus = "refunded"
)

// statusTransitions is the fixed transition graph. A state missing from the
// map is unknown; a state mapping to an empty slice is terminal.
var statusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusReturned},
	OrderStatusDelivered:  {OrderStatusCompleted},
	OrderStatusCompleted:  {},
	OrderStatusCancelled:  {},
	OrderStatusFailed:     {OrderStatusPending},
	OrderStatusReturned:   {OrderStatusProcessing, OrderStatusRefunded},
	OrderStatusRefunded:   {},
}

// statusOrder fixes a stable iteration order for listings and reports.
var statusOrder = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusFailed,
	OrderStatusReturned,
	OrderStatusRefunded,
}

var statusDescriptions = map[OrderStatus]string{
	OrderStatusPending:    "Order received, waiting to be processed",
	OrderStatusProcessing: "Order is being prepared and produced",
	OrderStatusShipped:    "Order handed over to the carrier",
	OrderStatusDelivered:  "Carrier reported successful delivery",
	OrderStatusCompleted:  "Order closed after delivery confirmation",
	OrderStatusCancelled:  "Order was cancelled",
	OrderStatusFailed:     "Order handling failed and may be retried",
	OrderStatusReturned:   "Customer returned the shipment",
	OrderStatusRefunded:   "Return settled with a refund",
}

// ParseOrderStatus normalises raw input into a known status.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Known() {
		return "", false
	}
	return status, true
}

// Known reports whether the status is a member of the transition table.
func (s OrderStatus) Known() bool {
	_, ok := statusTransitions[s]
	return ok
}

// Terminal reports whether no further transitions are allowed from s.
func (s OrderStatus) Terminal() bool {
	next, ok := statusTransitions[s]
	return ok && len(next) == 0
}

// Problematic reports whether the status triggers internal alerting.
func (s OrderStatus) Problematic() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusFailed, OrderStatusReturned:
		return true
	}
	return false
}

// Description returns the human-readable explanation for the status.
func (s OrderStatus) Description() string {
	return statusDescriptions[s]
}

// AllowedTransitions returns the permitted next states for the given status.
// The second return is false when the status is not part of the table.
func AllowedTransitions(s OrderStatus) ([]OrderStatus, bool) {
	next, ok := statusTransitions[s]
	if !ok {
		return nil, false
	}
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out, true
}

// AllStatuses returns every known status in stable order.
func AllStatuses() []OrderStatus {
	out := make([]OrderStatus, len(statusOrder))
	copy(out, statusOrder)
	return out
}

// StatusCategory names a reporting bucket over the status set.
type StatusCategory string

const (
	// CategoryActive groups orders still before shipment.
	CategoryActive StatusCategory = "active"
	// CategoryShipped groups orders in transit or delivered.
	CategoryShipped StatusCategory = "shipped"
	// CategoryFinal groups orders that reached a settled end state.
	CategoryFinal StatusCategory = "final"
	// CategoryProblematic groups orders requiring operator attention.
	CategoryProblematic StatusCategory = "problematic"
)

var categoryStatuses = map[StatusCategory][]OrderStatus{
	CategoryActive:      {OrderStatusPending, OrderStatusProcessing},
	CategoryShipped:     {OrderStatusShipped, OrderStatusDelivered},
	CategoryFinal:       {OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed, OrderStatusRefunded},
	CategoryProblematic: {OrderStatusReturned, OrderStatusFailed, OrderStatusCancelled},
}

var categoryOrder = []StatusCategory{CategoryActive, CategoryShipped, CategoryFinal, CategoryProblematic}

// ParseStatusCategory normalises raw input into a known category.
func ParseStatusCategory(raw string) (StatusCategory, bool) {
	category := StatusCategory(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := categoryStatuses[category]; !ok {
		return "", false
	}
	return category, true
}

// CategoryStatuses returns the statuses belonging to the named category.
func CategoryStatuses(c StatusCategory) ([]OrderStatus, bool) {
	statuses, ok := categoryStatuses[c]
	if !ok {
		return nil, false
	}
	out := make([]OrderStatus, len(statuses))
	copy(out, statuses)
	return out, true
}

// AllCategories returns every reporting category in stable order.
func AllCategories() []StatusCategory {
	out := make([]StatusCategory, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}
