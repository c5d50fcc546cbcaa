package services

import (
	"context"
	"time"

	domain "github.com/stampforge/orders-api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	DesignOrder        = domain.DesignOrder
	OrderStatus        = domain.OrderStatus
	StatusCategory     = domain.StatusCategory
	StatusHistoryEntry = domain.StatusHistoryEntry
	AuditLogEntry      = domain.AuditLogEntry
	SystemHealthReport = domain.SystemHealthReport
)

// UpdateStatusCommand drives a single status change.
type UpdateStatusCommand struct {
	OrderID        string
	NewStatus      OrderStatus
	Reason         string
	ActorID        string
	ActorIsAdmin   bool
	Automatic      bool
	SkipValidation bool
	NotifyCustomer bool
}

// StatusUpdateResult reports the outcome of one applied transition.
type StatusUpdateResult struct {
	Order              Order
	Previous           OrderStatus
	DesignOrdersSynced int
	NotificationSent   bool
}

// BulkUpdateStatusCommand applies the same transition to many orders.
type BulkUpdateStatusCommand struct {
	OrderIDs       []string
	NewStatus      OrderStatus
	Reason         string
	ActorID        string
	ActorIsAdmin   bool
	SkipValidation bool
	NotifyCustomer bool
}

// BulkUpdateFailure names one order that could not be updated.
type BulkUpdateFailure struct {
	OrderID string `json:"orderId"`
	Error   string `json:"error"`
}

// BulkUpdateStatusResult summarises a bulk run; failures do not roll back
// orders that already succeeded.
type BulkUpdateStatusResult struct {
	Total     int                 `json:"total"`
	Succeeded []string            `json:"succeeded"`
	Failed    []BulkUpdateFailure `json:"failed"`
}

// OrderHistory combines the order's embedded status trail with its audit page.
type OrderHistory struct {
	OrderID        string                     `json:"orderId"`
	OrderNumber    string                     `json:"orderNumber"`
	Status         OrderStatus                `json:"status"`
	OrderCreatedAt time.Time                  `json:"orderCreatedAt"`
	History        []StatusHistoryEntry       `json:"history"`
	Audit          domain.Page[AuditLogEntry] `json:"audit"`
}

// ListOrdersQuery narrows the admin order listing. Status and Category are
// mutually exclusive.
type ListOrdersQuery struct {
	Status   string
	Category string
	UserID   string
	Limit    int
	Offset   int
}

// StatusBucket counts orders in one state.
type StatusBucket struct {
	Status      OrderStatus `json:"status"`
	Description string      `json:"description"`
	Count       int64       `json:"count"`
}

// CategoryBucket counts orders in one reporting category.
type CategoryBucket struct {
	Category StatusCategory `json:"category"`
	Count    int64          `json:"count"`
}

// StatusOverview is the operational dashboard snapshot.
type StatusOverview struct {
	Total          int64            `json:"total"`
	ByStatus       []StatusBucket   `json:"byStatus"`
	ByCategory     []CategoryBucket `json:"byCategory"`
	OpenOrderValue int64            `json:"openOrderValue"`
	Recent         []Order          `json:"recent"`
	GeneratedAt    time.Time        `json:"generatedAt"`
}

// StatusRule describes one state and its outgoing edges.
type StatusRule struct {
	Status             OrderStatus   `json:"status"`
	Description        string        `json:"description"`
	Terminal           bool          `json:"terminal"`
	AllowedTransitions []OrderStatus `json:"allowedTransitions"`
}

// CategoryRule names the statuses grouped under a reporting category.
type CategoryRule struct {
	Category StatusCategory `json:"category"`
	Statuses []OrderStatus  `json:"statuses"`
}

// ValidationRules is the machine-readable transition contract.
type ValidationRules struct {
	Rules      []StatusRule   `json:"rules"`
	Categories []CategoryRule `json:"categories"`
}

// StatusService orchestrates validated status transitions, audit logging, and
// the query surface over orders.
type StatusService interface {
	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (StatusUpdateResult, error)
	BulkUpdateStatus(ctx context.Context, cmd BulkUpdateStatusCommand) (BulkUpdateStatusResult, error)
	GetHistory(ctx context.Context, orderID string, limit int, offset int) (OrderHistory, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) (domain.Page[Order], error)
	Overview(ctx context.Context) (StatusOverview, error)
	ValidationRules(ctx context.Context) (ValidationRules, error)
}

// LinkStrategy names how a design order resolved to its parent.
type LinkStrategy string

const (
	// LinkStrategyReference means the child carries a direct orderRef.
	LinkStrategyReference LinkStrategy = "reference"
	// LinkStrategyNumber means the child matched through the denormalized order number.
	LinkStrategyNumber LinkStrategy = "number"
)

// LinkedDesignOrder annotates a resolved child with its link strategy.
type LinkedDesignOrder struct {
	DesignOrder DesignOrder  `json:"designOrder"`
	Strategy    LinkStrategy `json:"strategy"`
}

// OrderWithDesignOrders resolves a parent order together with its children.
type OrderWithDesignOrders struct {
	Order        Order               `json:"order"`
	DesignOrders []LinkedDesignOrder `json:"designOrders"`
	LinkedCount  int                 `json:"linkedCount"`
	LegacyCount  int                 `json:"legacyCount"`
}

// OrphanedDesignOrder is an unlinked child plus its resolvable parent, if any.
type OrphanedDesignOrder struct {
	DesignOrder   DesignOrder `json:"designOrder"`
	ParentOrderID string      `json:"parentOrderId,omitempty"`
	ParentFound   bool        `json:"parentFound"`
}

// ReconcileOrphansCommand bounds one reconciliation run.
type ReconcileOrphansCommand struct {
	Limit   int
	DryRun  bool
	ActorID string
}

// ReconcileFailure names one design order that could not be relinked.
type ReconcileFailure struct {
	DesignOrderID string `json:"designOrderId"`
	Error         string `json:"error"`
}

// ReconcileOrphansResult summarises a reconciliation run.
type ReconcileOrphansResult struct {
	Examined  int                `json:"examined"`
	Linked    int                `json:"linked"`
	Unmatched int                `json:"unmatched"`
	Failures  []ReconcileFailure `json:"failures"`
	DryRun    bool               `json:"dryRun"`
}

// LinkStatistics reports linking coverage across the design order collection.
type LinkStatistics struct {
	TotalOrders        int64     `json:"totalOrders"`
	OrdersWithChildren int64     `json:"ordersWithChildren"`
	TotalDesignOrders  int64     `json:"totalDesignOrders"`
	Linked             int64     `json:"linked"`
	Unlinked           int64     `json:"unlinked"`
	LinkRate           float64   `json:"linkRate"`
	GeneratedAt        time.Time `json:"generatedAt"`
}

// LinkingService resolves parent/child relationships between orders and design
// orders and repairs legacy documents that lack a direct reference.
type LinkingService interface {
	GetOrderWithDesignOrders(ctx context.Context, orderID string) (OrderWithDesignOrders, error)
	FindOrphanedDesignOrders(ctx context.Context, limit int, offset int) (domain.Page[OrphanedDesignOrder], error)
	ReconcileOrphans(ctx context.Context, cmd ReconcileOrphansCommand) (ReconcileOrphansResult, error)
	Statistics(ctx context.Context) (LinkStatistics, error)
}

// StatusChangeNotification carries the payload handed to downstream channels
// after a transition commits.
type StatusChangeNotification struct {
	OrderID        string
	OrderNumber    string
	UserID         string
	ContactName    string
	ContactEmail   string
	PreviousStatus OrderStatus
	NewStatus      OrderStatus
	Reason         string
	ActorID        string
	Automatic      bool
	Problematic    bool
	NotifyCustomer bool
	OccurredAt     time.Time
}

// NotificationOutcome records which delivery attempts succeeded. Failures are
// folded into Errors rather than propagated; a transition never fails because
// a notification did.
type NotificationOutcome struct {
	CustomerSent      bool
	InternalAlertSent bool
	Errors            []string
}

// AnySent reports whether at least one channel accepted the message.
func (o NotificationOutcome) AnySent() bool {
	return o.CustomerSent || o.InternalAlertSent
}

// NotificationDispatcher delivers status change notifications best-effort.
// The customer channel is attempted when the change requests it and contact
// details are present; the internal alert channel is attempted for
// problematic states regardless. Attempts are independent.
type NotificationDispatcher interface {
	DispatchStatusChange(ctx context.Context, notification StatusChangeNotification) NotificationOutcome
}

// SystemService exposes operational health reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
