package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/stampforge/orders-api/internal/domain"
	"github.com/stampforge/orders-api/internal/repositories"
)

func newTestLinkingService(t *testing.T, deps LinkingServiceDeps) LinkingService {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = fixedClock()
	}
	svc, err := NewLinkingService(deps)
	if err != nil {
		t.Fatalf("NewLinkingService: %v", err)
	}
	return svc
}

func TestGetOrderWithDesignOrdersMergesBothLinkPaths(t *testing.T) {
	ref := "ord-1"
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "ord-1", OrderNumber: "SF-1"}, nil
		},
	}
	designOrders := &stubDesignOrderRepo{
		byRefFn: func(context.Context, string) ([]domain.DesignOrder, error) {
			return []domain.DesignOrder{{ID: "des-1", OrderRef: &ref}}, nil
		},
		byNumberFn: func(context.Context, string) ([]domain.DesignOrder, error) {
			return []domain.DesignOrder{{ID: "des-1", OrderRef: &ref}, {ID: "des-2"}}, nil
		},
	}

	svc := newTestLinkingService(t, LinkingServiceDeps{Orders: orders, DesignOrders: designOrders})

	result, err := svc.GetOrderWithDesignOrders(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("GetOrderWithDesignOrders: %v", err)
	}
	if len(result.DesignOrders) != 2 {
		t.Fatalf("expected 2 design orders, got %d", len(result.DesignOrders))
	}
	if result.LinkedCount != 1 || result.LegacyCount != 1 {
		t.Fatalf("unexpected counts: linked=%d legacy=%d", result.LinkedCount, result.LegacyCount)
	}
	strategies := map[string]LinkStrategy{}
	for _, child := range result.DesignOrders {
		strategies[child.DesignOrder.ID] = child.Strategy
	}
	if strategies["des-1"] != LinkStrategyReference {
		t.Fatalf("expected des-1 resolved by reference, got %s", strategies["des-1"])
	}
	if strategies["des-2"] != LinkStrategyNumber {
		t.Fatalf("expected des-2 resolved by number, got %s", strategies["des-2"])
	}
}

func TestFindOrphanedDesignOrdersResolvesParents(t *testing.T) {
	designOrders := &stubDesignOrderRepo{
		unlinkedFn: func(context.Context, int, int) (domain.Page[domain.DesignOrder], error) {
			return domain.Page[domain.DesignOrder]{
				Items: []domain.DesignOrder{
					{ID: "des-1", OrderNumber: "SF-1"},
					{ID: "des-2", OrderNumber: "SF-GONE"},
				},
				Total: 2,
			}, nil
		},
	}
	orders := &stubOrderRepo{
		findNumberFn: func(_ context.Context, number string) (domain.Order, error) {
			if number == "SF-1" {
				return domain.Order{ID: "ord-1", OrderNumber: "SF-1"}, nil
			}
			return domain.Order{}, &stubRepoError{notFound: true}
		},
	}

	svc := newTestLinkingService(t, LinkingServiceDeps{Orders: orders, DesignOrders: designOrders})

	page, err := svc.FindOrphanedDesignOrders(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("FindOrphanedDesignOrders: %v", err)
	}
	if len(page.Items) != 2 || page.Total != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if !page.Items[0].ParentFound || page.Items[0].ParentOrderID != "ord-1" {
		t.Fatalf("expected first orphan resolved, got %+v", page.Items[0])
	}
	if page.Items[1].ParentFound {
		t.Fatalf("expected second orphan unresolved, got %+v", page.Items[1])
	}
}

func TestReconcileOrphansLinksMatchedChildren(t *testing.T) {
	child := domain.DesignOrder{ID: "des-1", OrderNumber: "SF-1"}
	order := domain.Order{ID: "ord-1", OrderNumber: "SF-1"}

	var savedChild *domain.DesignOrder
	var savedOrder *domain.Order

	designOrders := &stubDesignOrderRepo{
		unlinkedFn: func(context.Context, int, int) (domain.Page[domain.DesignOrder], error) {
			return domain.Page[domain.DesignOrder]{
				Items: []domain.DesignOrder{child, {ID: "des-2", OrderNumber: "SF-GONE"}},
				Total: 2,
			}, nil
		},
		findFn: func(_ context.Context, id string) (domain.DesignOrder, error) {
			if id == "des-1" {
				return child, nil
			}
			return domain.DesignOrder{}, &stubRepoError{notFound: true}
		},
		saveFn: func(_ context.Context, saved domain.DesignOrder) error {
			savedChild = &saved
			return nil
		},
	}
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			if id == "ord-1" {
				return order, nil
			}
			return domain.Order{}, &stubRepoError{notFound: true}
		},
		findNumberFn: func(_ context.Context, number string) (domain.Order, error) {
			if number == "SF-1" {
				return order, nil
			}
			return domain.Order{}, &stubRepoError{notFound: true}
		},
		saveFn: func(_ context.Context, saved domain.Order) error {
			savedOrder = &saved
			return nil
		},
	}

	svc := newTestLinkingService(t, LinkingServiceDeps{Orders: orders, DesignOrders: designOrders})

	result, err := svc.ReconcileOrphans(context.Background(), ReconcileOrphansCommand{ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("ReconcileOrphans: %v", err)
	}
	if result.Examined != 2 || result.Linked != 1 || result.Unmatched != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", result.Failures)
	}

	if savedChild == nil || savedChild.OrderRef == nil || *savedChild.OrderRef != "ord-1" {
		t.Fatalf("expected child linked to ord-1, got %+v", savedChild)
	}
	if savedOrder == nil || len(savedOrder.DesignOrderRefs) != 1 || savedOrder.DesignOrderRefs[0] != "des-1" {
		t.Fatalf("expected parent to record child ref, got %+v", savedOrder)
	}
}

func TestReconcileOrphansDryRunWritesNothing(t *testing.T) {
	designOrders := &stubDesignOrderRepo{
		unlinkedFn: func(context.Context, int, int) (domain.Page[domain.DesignOrder], error) {
			return domain.Page[domain.DesignOrder]{
				Items: []domain.DesignOrder{{ID: "des-1", OrderNumber: "SF-1"}},
				Total: 1,
			}, nil
		},
		saveFn: func(context.Context, domain.DesignOrder) error {
			return errors.New("dry run must not write")
		},
	}
	orders := &stubOrderRepo{
		findNumberFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "ord-1", OrderNumber: "SF-1"}, nil
		},
		saveFn: func(context.Context, domain.Order) error {
			return errors.New("dry run must not write")
		},
	}

	svc := newTestLinkingService(t, LinkingServiceDeps{Orders: orders, DesignOrders: designOrders})

	result, err := svc.ReconcileOrphans(context.Background(), ReconcileOrphansCommand{DryRun: true})
	if err != nil {
		t.Fatalf("ReconcileOrphans: %v", err)
	}
	if !result.DryRun || result.Linked != 1 || len(result.Failures) != 0 {
		t.Fatalf("unexpected dry run result: %+v", result)
	}
}

func TestReconcileOrphansSkipsAlreadyLinkedChild(t *testing.T) {
	ref := "ord-other"
	designOrders := &stubDesignOrderRepo{
		unlinkedFn: func(context.Context, int, int) (domain.Page[domain.DesignOrder], error) {
			return domain.Page[domain.DesignOrder]{
				Items: []domain.DesignOrder{{ID: "des-1", OrderNumber: "SF-1"}},
				Total: 1,
			}, nil
		},
		// A concurrent run linked the child between listing and the transaction.
		findFn: func(context.Context, string) (domain.DesignOrder, error) {
			return domain.DesignOrder{ID: "des-1", OrderNumber: "SF-1", OrderRef: &ref}, nil
		},
		saveFn: func(context.Context, domain.DesignOrder) error {
			return errors.New("already linked child must not be rewritten")
		},
	}
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "ord-1", OrderNumber: "SF-1"}, nil
		},
		findNumberFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "ord-1", OrderNumber: "SF-1"}, nil
		},
	}

	svc := newTestLinkingService(t, LinkingServiceDeps{Orders: orders, DesignOrders: designOrders})

	result, err := svc.ReconcileOrphans(context.Background(), ReconcileOrphansCommand{})
	if err != nil {
		t.Fatalf("ReconcileOrphans: %v", err)
	}
	if result.Linked != 1 || len(result.Failures) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestStatisticsComputesLinkRate(t *testing.T) {
	designOrders := &stubDesignOrderRepo{
		countFn:       func(context.Context) (int64, error) { return 8, nil },
		countLinkedFn: func(context.Context) (int64, error) { return 6, nil },
		linkedRefsFn: func(context.Context) ([]string, error) {
			return []string{"ord-1", "ord-1", "ord-2", "ord-3", "ord-3", "ord-3"}, nil
		},
	}
	orders := &stubOrderRepo{
		countStatusFn: func(context.Context) ([]repositories.StatusCount, error) {
			return []repositories.StatusCount{
				{Status: domain.OrderStatusPending, Count: 2},
				{Status: domain.OrderStatusShipped, Count: 3},
			}, nil
		},
	}

	svc := newTestLinkingService(t, LinkingServiceDeps{Orders: orders, DesignOrders: designOrders})

	stats, err := svc.Statistics(context.Background())
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalDesignOrders != 8 || stats.Linked != 6 || stats.Unlinked != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.LinkRate != 0.75 {
		t.Fatalf("expected link rate 0.75, got %f", stats.LinkRate)
	}
	if stats.TotalOrders != 5 {
		t.Fatalf("expected 5 orders, got %d", stats.TotalOrders)
	}
	if stats.OrdersWithChildren != 3 {
		t.Fatalf("expected 3 distinct parents, got %d", stats.OrdersWithChildren)
	}
}
