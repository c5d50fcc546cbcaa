package firestore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/stampforge/orders-api/internal/platform/firestore"
	"github.com/stampforge/orders-api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider     *pfirestore.Provider
	orders       *OrderRepository
	designOrders *DesignOrderRepository
	auditLogs    *AuditLogRepository
	health       repositories.HealthRepository
}

// NewRegistry constructs the repository set sharing one provider. idGen
// supplies audit document IDs.
func NewRegistry(provider *pfirestore.Provider, idGen func() string, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	designOrders, err := NewDesignOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	auditLogs, err := NewAuditLogRepository(provider, idGen)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:     provider,
		orders:       orders,
		designOrders: designOrders,
		auditLogs:    auditLogs,
		health:       health,
	}, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) DesignOrders() repositories.DesignOrderRepository { return r.designOrders }
func (r *Registry) AuditLogs() repositories.AuditLogRepository       { return r.auditLogs }
func (r *Registry) Health() repositories.HealthRepository            { return r.health }

// RunInTx delegates to the provider's transaction support.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	return r.provider.RunInTx(ctx, fn)
}

func notFoundError(subject string) error {
	return status.Error(codes.NotFound, subject+" not found")
}

// Ensure interface compliance.
var _ repositories.Registry = (*Registry)(nil)
