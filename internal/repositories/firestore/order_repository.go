package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/stampforge/orders-api/internal/domain"
	pfirestore "github.com/stampforge/orders-api/internal/platform/firestore"
	"github.com/stampforge/orders-api/internal/repositories"
)

const (
	ordersCollection = "orders"

	defaultListLimit = 50
	maxListLimit     = 200
)

// OrderRepository persists parent order documents in Firestore.
type OrderRepository struct {
	base *pfirestore.BaseRepository[domain.Order]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base: pfirestore.NewBaseRepository[domain.Order](provider, ordersCollection, nil, nil),
	}, nil
}

// FindByID loads the order document.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	order := doc.Data
	order.ID = doc.ID
	return order, nil
}

// FindByOrderNumber resolves an order through its human-facing number.
func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return domain.Order{}, errors.New("order repository: order number is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", number).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByOrderNumber", notFoundError(fmt.Sprintf("order %s", number)))
	}
	order := docs[0].Data
	order.ID = docs[0].ID
	return order, nil
}

// Save upserts the full order document under its ID.
func (r *OrderRepository) Save(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Set(ctx, id, order)
	return err
}

// List returns a filtered, offset-paged slice of orders, newest change first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	narrow := func(q firestore.Query) firestore.Query {
		if len(filter.Statuses) > 0 {
			q = q.Where("status", "in", statusValues(filter.Statuses))
		}
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			q = q.Where("userId", "==", uid)
		}
		return q
	}

	total, err := r.base.Count(ctx, narrow)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return narrow(q).
			OrderBy("statusChangedAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc).
			Offset(offset).
			Limit(limit)
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := doc.Data
		order.ID = doc.ID
		items = append(items, order)
	}

	return domain.Page[domain.Order]{
		Items:   items,
		Total:   total,
		HasMore: int64(offset+len(items)) < total,
	}, nil
}

// CountByStatus aggregates order counts per known status.
func (r *OrderRepository) CountByStatus(ctx context.Context) ([]repositories.StatusCount, error) {
	counts := make([]repositories.StatusCount, 0, len(domain.AllStatuses()))
	for _, status := range domain.AllStatuses() {
		status := status
		count, err := r.base.Count(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("status", "==", string(status))
		})
		if err != nil {
			return nil, err
		}
		counts = append(counts, repositories.StatusCount{Status: status, Count: count})
	}
	return counts, nil
}

// SumAmountByStatuses aggregates the total order value across the given statuses.
func (r *OrderRepository) SumAmountByStatuses(ctx context.Context, statuses []domain.OrderStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	return r.base.Sum(ctx, "totalAmount", func(q firestore.Query) firestore.Query {
		return q.Where("status", "in", statusValues(statuses))
	})
}

func statusValues(statuses []domain.OrderStatus) []string {
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	return values
}

// Ensure interface compliance.
var _ repositories.OrderRepository = (*OrderRepository)(nil)
