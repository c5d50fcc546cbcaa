package repositories

import (
	"context"

	domain "github.com/stampforge/orders-api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	DesignOrders() DesignOrderRepository
	AuditLogs() AuditLogRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations into one atomic boundary. Reads and
// writes issued through repositories inside fn observe and join the same
// transaction; when fn returns an error nothing is committed.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter narrows and pages order listings.
type OrderListFilter struct {
	Statuses []domain.OrderStatus
	UserID   string
	Limit    int
	Offset   int
}

// StatusCount is one bucket of a per-status aggregation.
type StatusCount struct {
	Status domain.OrderStatus
	Count  int64
}

// OrderRepository persists parent order documents.
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	Save(ctx context.Context, order domain.Order) error
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
	SumAmountByStatuses(ctx context.Context, statuses []domain.OrderStatus) (int64, error)
}

// DesignOrderRepository persists per-design production documents.
type DesignOrderRepository interface {
	FindByID(ctx context.Context, designOrderID string) (domain.DesignOrder, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) ([]domain.DesignOrder, error)
	FindByOrderRef(ctx context.Context, orderID string) ([]domain.DesignOrder, error)
	Save(ctx context.Context, designOrder domain.DesignOrder) error
	ListUnlinked(ctx context.Context, limit int, offset int) (domain.Page[domain.DesignOrder], error)
	Count(ctx context.Context) (int64, error)
	CountLinked(ctx context.Context) (int64, error)
	ListLinkedRefs(ctx context.Context) ([]string, error)
}

// AuditLogRepository appends immutable status-change records.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) (domain.AuditLogEntry, error)
	ListByOrder(ctx context.Context, orderID string, limit int, offset int) (domain.Page[domain.AuditLogEntry], error)
}

// HealthRepository evaluates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
