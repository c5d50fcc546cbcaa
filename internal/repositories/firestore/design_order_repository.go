package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/stampforge/orders-api/internal/domain"
	pfirestore "github.com/stampforge/orders-api/internal/platform/firestore"
	"github.com/stampforge/orders-api/internal/repositories"
)

const designOrdersCollection = "designOrders"

// DesignOrderRepository persists per-design production documents in Firestore.
type DesignOrderRepository struct {
	base *pfirestore.BaseRepository[domain.DesignOrder]
}

// NewDesignOrderRepository constructs a Firestore-backed design order repository.
func NewDesignOrderRepository(provider *pfirestore.Provider) (*DesignOrderRepository, error) {
	if provider == nil {
		return nil, errors.New("design order repository requires firestore provider")
	}
	return &DesignOrderRepository{
		base: pfirestore.NewBaseRepository[domain.DesignOrder](provider, designOrdersCollection, nil, nil),
	}, nil
}

// FindByID loads the design order document.
func (r *DesignOrderRepository) FindByID(ctx context.Context, designOrderID string) (domain.DesignOrder, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(designOrderID))
	if err != nil {
		return domain.DesignOrder{}, err
	}
	designOrder := doc.Data
	designOrder.ID = doc.ID
	return designOrder, nil
}

// FindByOrderNumber returns all design orders sharing the legacy order number link.
func (r *DesignOrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) ([]domain.DesignOrder, error) {
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return nil, errors.New("design order repository: order number is required")
	}
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", number)
	})
}

// FindByOrderRef returns all design orders carrying a direct parent reference.
func (r *DesignOrderRepository) FindByOrderRef(ctx context.Context, orderID string) ([]domain.DesignOrder, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, errors.New("design order repository: order id is required")
	}
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderRef", "==", id)
	})
}

// Save upserts the full design order document under its ID.
func (r *DesignOrderRepository) Save(ctx context.Context, designOrder domain.DesignOrder) error {
	id := strings.TrimSpace(designOrder.ID)
	if id == "" {
		return errors.New("design order repository: design order id is required")
	}
	_, err := r.base.Set(ctx, id, designOrder)
	return err
}

// ListUnlinked pages through design orders without a direct parent reference,
// oldest first so reconciliation drains the backlog deterministically.
func (r *DesignOrderRepository) ListUnlinked(ctx context.Context, limit int, offset int) (domain.Page[domain.DesignOrder], error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	unlinked := func(q firestore.Query) firestore.Query {
		return q.Where("orderRef", "==", nil)
	}

	total, err := r.base.Count(ctx, unlinked)
	if err != nil {
		return domain.Page[domain.DesignOrder]{}, err
	}

	items, err := r.query(ctx, func(q firestore.Query) firestore.Query {
		return unlinked(q).
			OrderBy("createdAt", firestore.Asc).
			OrderBy(firestore.DocumentID, firestore.Asc).
			Offset(offset).
			Limit(limit)
	})
	if err != nil {
		return domain.Page[domain.DesignOrder]{}, err
	}

	return domain.Page[domain.DesignOrder]{
		Items:   items,
		Total:   total,
		HasMore: int64(offset+len(items)) < total,
	}, nil
}

// Count returns the total number of design order documents.
func (r *DesignOrderRepository) Count(ctx context.Context) (int64, error) {
	return r.base.Count(ctx, nil)
}

// CountLinked returns the number of design orders with a direct parent reference.
func (r *DesignOrderRepository) CountLinked(ctx context.Context) (int64, error) {
	return r.base.Count(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderRef", "!=", nil)
	})
}

// ListLinkedRefs returns the parent reference of every linked design order
// using a projection so only the orderRef field travels over the wire.
func (r *DesignOrderRepository) ListLinkedRefs(ctx context.Context) ([]string, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderRef", "!=", nil).Select("orderRef")
	})
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.Data.OrderRef != nil && *doc.Data.OrderRef != "" {
			refs = append(refs, *doc.Data.OrderRef)
		}
	}
	return refs, nil
}

func (r *DesignOrderRepository) query(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.DesignOrder, error) {
	docs, err := r.base.Query(ctx, build)
	if err != nil {
		return nil, err
	}
	items := make([]domain.DesignOrder, 0, len(docs))
	for _, doc := range docs {
		designOrder := doc.Data
		designOrder.ID = doc.ID
		items = append(items, designOrder)
	}
	return items, nil
}

// Ensure interface compliance.
var _ repositories.DesignOrderRepository = (*DesignOrderRepository)(nil)
