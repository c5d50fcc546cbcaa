package domain

import "time"

// ContactInfo is the denormalised customer snapshot stored on the order.
type ContactInfo struct {
	Name  string `firestore:"name" json:"name"`
	Email string `firestore:"email" json:"email"`
}

// StatusHistoryEntry records one applied transition on an order or
// design order.
type StatusHistoryEntry struct {
	Previous  OrderStatus `firestore:"previous" json:"previous"`
	New       OrderStatus `firestore:"new" json:"new"`
	ChangedAt time.Time   `firestore:"changedAt" json:"changedAt"`
	ChangedBy string      `firestore:"changedBy" json:"changedBy"`
	Reason    string      `firestore:"reason,omitempty" json:"reason,omitempty"`
	Automatic bool        `firestore:"automatic" json:"automatic"`
}

// Order is the parent fulfillment document.
type Order struct {
	ID              string               `firestore:"-" json:"id"`
	OrderNumber     string               `firestore:"orderNumber" json:"orderNumber"`
	UserID          string               `firestore:"userId" json:"userId"`
	Contact         ContactInfo          `firestore:"contact" json:"contact"`
	Status          OrderStatus          `firestore:"status" json:"status"`
	StatusHistory   []StatusHistoryEntry `firestore:"statusHistory" json:"statusHistory"`
	DesignOrderRefs []string             `firestore:"designOrderRefs" json:"designOrderRefs"`
	TotalAmount     int64                `firestore:"totalAmount" json:"totalAmount"`
	Currency        string               `firestore:"currency" json:"currency"`
	CreatedAt       time.Time            `firestore:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time            `firestore:"updatedAt" json:"updatedAt"`
	StatusChangedAt time.Time            `firestore:"statusChangedAt" json:"statusChangedAt"`
}

// DesignOrder is the per-design production document. Older documents link to
// their parent only through the shared order number; newer ones also carry a
// direct parent reference.
type DesignOrder struct {
	ID            string               `firestore:"-" json:"id"`
	OrderNumber   string               `firestore:"orderNumber" json:"orderNumber"`
	// OrderRef persists as an explicit null when unlinked so the orphan
	// queries (orderRef == nil) keep matching documents after a rewrite.
	OrderRef      *string              `firestore:"orderRef" json:"orderRef,omitempty"`
	Status        OrderStatus          `firestore:"status" json:"status"`
	StatusHistory []StatusHistoryEntry `firestore:"statusHistory" json:"statusHistory"`
	CreatedAt     time.Time            `firestore:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time            `firestore:"updatedAt" json:"updatedAt"`
}

// Linked reports whether the design order carries a direct parent reference.
func (d DesignOrder) Linked() bool {
	return d.OrderRef != nil && *d.OrderRef != ""
}

// AuditLogEntry is the immutable record written after a status change
// commits. NotificationSent reflects the best-effort dispatch outcome.
type AuditLogEntry struct {
	ID               string      `firestore:"-" json:"id"`
	OrderID          string      `firestore:"orderId" json:"orderId"`
	OrderNumber      string      `firestore:"orderNumber" json:"orderNumber"`
	Previous         OrderStatus `firestore:"previous" json:"previous"`
	New              OrderStatus `firestore:"new" json:"new"`
	ChangedBy        string      `firestore:"changedBy" json:"changedBy"`
	Reason           string      `firestore:"reason,omitempty" json:"reason,omitempty"`
	Automatic        bool        `firestore:"automatic" json:"automatic"`
	DesignOrdersSync int         `firestore:"designOrdersSync" json:"designOrdersSync"`
	NotificationSent bool        `firestore:"notificationSent" json:"notificationSent"`
	CreatedAt        time.Time   `firestore:"createdAt" json:"createdAt"`
}

// Page is the offset-paged listing result shape shared by query surfaces.
type Page[T any] struct {
	Items   []T   `json:"items"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"hasMore"`
}
