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

const auditLogCollection = "orderStatusAudit"

// AuditLogRepository appends immutable status-change records to Firestore.
type AuditLogRepository struct {
	base  *pfirestore.BaseRepository[domain.AuditLogEntry]
	idGen func() string
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
// idGen supplies document IDs; ULIDs keep append order sortable.
func NewAuditLogRepository(provider *pfirestore.Provider, idGen func() string) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository requires firestore provider")
	}
	if idGen == nil {
		return nil, errors.New("audit log repository requires id generator")
	}
	return &AuditLogRepository{
		base:  pfirestore.NewBaseRepository[domain.AuditLogEntry](provider, auditLogCollection, nil, nil),
		idGen: idGen,
	}, nil
}

// Append writes a new audit record and returns it with its assigned ID.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) (domain.AuditLogEntry, error) {
	if strings.TrimSpace(entry.OrderID) == "" {
		return domain.AuditLogEntry{}, errors.New("audit log repository: order id is required")
	}
	entry.ID = r.idGen()
	if _, err := r.base.Set(ctx, entry.ID, entry); err != nil {
		return domain.AuditLogEntry{}, err
	}
	return entry, nil
}

// ListByOrder pages the audit trail for one order, newest first.
func (r *AuditLogRepository) ListByOrder(ctx context.Context, orderID string, limit int, offset int) (domain.Page[domain.AuditLogEntry], error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Page[domain.AuditLogEntry]{}, errors.New("audit log repository: order id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	forOrder := func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", id)
	}

	total, err := r.base.Count(ctx, forOrder)
	if err != nil {
		return domain.Page[domain.AuditLogEntry]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return forOrder(q).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc).
			Offset(offset).
			Limit(limit)
	})
	if err != nil {
		return domain.Page[domain.AuditLogEntry]{}, err
	}

	items := make([]domain.AuditLogEntry, 0, len(docs))
	for _, doc := range docs {
		entry := doc.Data
		entry.ID = doc.ID
		items = append(items, entry)
	}

	return domain.Page[domain.AuditLogEntry]{
		Items:   items,
		Total:   total,
		HasMore: int64(offset+len(items)) < total,
	}, nil
}

// Ensure interface compliance.
var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)
