package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/stampforge/orders-api/internal/domain"
	"github.com/stampforge/orders-api/internal/platform/auth"
	"github.com/stampforge/orders-api/internal/services"
)

type stubLinkingService struct {
	resolveFn   func(ctx context.Context, orderID string) (services.OrderWithDesignOrders, error)
	orphansFn   func(ctx context.Context, limit, offset int) (domain.Page[services.OrphanedDesignOrder], error)
	reconcileFn func(ctx context.Context, cmd services.ReconcileOrphansCommand) (services.ReconcileOrphansResult, error)
	statsFn     func(ctx context.Context) (services.LinkStatistics, error)
}

func (s *stubLinkingService) GetOrderWithDesignOrders(ctx context.Context, orderID string) (services.OrderWithDesignOrders, error) {
	if s.resolveFn == nil {
		return services.OrderWithDesignOrders{}, errors.New("unexpected GetOrderWithDesignOrders call")
	}
	return s.resolveFn(ctx, orderID)
}

func (s *stubLinkingService) FindOrphanedDesignOrders(ctx context.Context, limit, offset int) (domain.Page[services.OrphanedDesignOrder], error) {
	if s.orphansFn == nil {
		return domain.Page[services.OrphanedDesignOrder]{}, errors.New("unexpected FindOrphanedDesignOrders call")
	}
	return s.orphansFn(ctx, limit, offset)
}

func (s *stubLinkingService) ReconcileOrphans(ctx context.Context, cmd services.ReconcileOrphansCommand) (services.ReconcileOrphansResult, error) {
	if s.reconcileFn == nil {
		return services.ReconcileOrphansResult{}, errors.New("unexpected ReconcileOrphans call")
	}
	return s.reconcileFn(ctx, cmd)
}

func (s *stubLinkingService) Statistics(ctx context.Context) (services.LinkStatistics, error) {
	if s.statsFn == nil {
		return services.LinkStatistics{}, errors.New("unexpected Statistics call")
	}
	return s.statsFn(ctx)
}

var _ services.LinkingService = (*stubLinkingService)(nil)

func newLinkingRouter(svc services.LinkingService) chi.Router {
	h := NewLinkingHandlers(nil, svc)
	r := chi.NewRouter()
	r.Route("/", h.Routes)
	return r
}

func TestGetOrderWithDesignOrdersAnnotatesStrategy(t *testing.T) {
	ref := "ord-1"
	svc := &stubLinkingService{
		resolveFn: func(_ context.Context, orderID string) (services.OrderWithDesignOrders, error) {
			if orderID != "ord-1" {
				t.Fatalf("expected ord-1, got %s", orderID)
			}
			return services.OrderWithDesignOrders{
				Order: services.Order{ID: "ord-1", OrderNumber: "SF-1001"},
				DesignOrders: []services.LinkedDesignOrder{
					{DesignOrder: services.DesignOrder{ID: "des-1", OrderRef: &ref}, Strategy: services.LinkStrategyReference},
					{DesignOrder: services.DesignOrder{ID: "des-2", OrderNumber: "SF-1001"}, Strategy: services.LinkStrategyNumber},
				},
				LinkedCount: 1,
				LegacyCount: 1,
			}, nil
		},
	}

	router := newLinkingRouter(svc)

	req := staffRequest(httptest.NewRequest(http.MethodGet, "/orders/ord-1", nil), "staff-7", auth.RoleStaff)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
		DesignOrders []struct {
			DesignOrder struct {
				ID string `json:"id"`
			} `json:"designOrder"`
			Strategy string `json:"strategy"`
		} `json:"designOrders"`
		LinkedCount int `json:"linkedCount"`
		LegacyCount int `json:"legacyCount"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.DesignOrders) != 2 {
		t.Fatalf("expected 2 design orders, got %d", len(resp.DesignOrders))
	}
	if resp.DesignOrders[0].Strategy != "reference" || resp.DesignOrders[1].Strategy != "number" {
		t.Fatalf("unexpected strategies: %+v", resp.DesignOrders)
	}
	if resp.LinkedCount != 1 || resp.LegacyCount != 1 {
		t.Fatalf("unexpected counts: %+v", resp)
	}
}

func TestGetOrderWithDesignOrdersNotFound(t *testing.T) {
	svc := &stubLinkingService{
		resolveFn: func(context.Context, string) (services.OrderWithDesignOrders, error) {
			return services.OrderWithDesignOrders{}, services.ErrOrderNotFound
		},
	}

	router := newLinkingRouter(svc)

	req := staffRequest(httptest.NewRequest(http.MethodGet, "/orders/missing", nil), "staff-7", auth.RoleStaff)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestListOrphansParsesPagination(t *testing.T) {
	svc := &stubLinkingService{
		orphansFn: func(_ context.Context, limit, offset int) (domain.Page[services.OrphanedDesignOrder], error) {
			if limit != 5 || offset != 15 {
				t.Fatalf("expected limit 5 offset 15, got %d/%d", limit, offset)
			}
			return domain.Page[services.OrphanedDesignOrder]{
				Items: []services.OrphanedDesignOrder{
					{DesignOrder: services.DesignOrder{ID: "des-1", OrderNumber: "SF-1001"}, ParentOrderID: "ord-1", ParentFound: true},
				},
				Total:   21,
				HasMore: true,
			}, nil
		},
	}

	router := newLinkingRouter(svc)

	req := staffRequest(httptest.NewRequest(http.MethodGet, "/orphans?limit=5&skip=15", nil), "staff-7", auth.RoleStaff)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var page struct {
		Items []struct {
			ParentOrderID string `json:"parentOrderId"`
			ParentFound   bool   `json:"parentFound"`
		} `json:"items"`
		Total int64 `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if page.Total != 21 || len(page.Items) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if !page.Items[0].ParentFound || page.Items[0].ParentOrderID != "ord-1" {
		t.Fatalf("unexpected orphan payload: %+v", page.Items[0])
	}
}

func TestReconcileForwardsCommand(t *testing.T) {
	svc := &stubLinkingService{
		reconcileFn: func(_ context.Context, cmd services.ReconcileOrphansCommand) (services.ReconcileOrphansResult, error) {
			if cmd.Limit != 25 {
				t.Fatalf("expected limit 25, got %d", cmd.Limit)
			}
			if !cmd.DryRun {
				t.Fatalf("expected dry run")
			}
			if cmd.ActorID != "admin-1" {
				t.Fatalf("expected actor admin-1, got %s", cmd.ActorID)
			}
			return services.ReconcileOrphansResult{Examined: 25, Linked: 20, Unmatched: 5, DryRun: true}, nil
		},
	}

	router := newLinkingRouter(svc)

	body := strings.NewReader(`{"limit":25,"dryRun":true}`)
	req := staffRequest(httptest.NewRequest(http.MethodPost, "/reconcile", body), "admin-1", auth.RoleAdmin)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp services.ReconcileOrphansResult
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Examined != 25 || resp.Linked != 20 || !resp.DryRun {
		t.Fatalf("unexpected reconcile result: %+v", resp)
	}
}

func TestReconcileAllowsEmptyBody(t *testing.T) {
	svc := &stubLinkingService{
		reconcileFn: func(_ context.Context, cmd services.ReconcileOrphansCommand) (services.ReconcileOrphansResult, error) {
			if cmd.Limit != 0 || cmd.DryRun {
				t.Fatalf("expected zero-value command, got %+v", cmd)
			}
			return services.ReconcileOrphansResult{}, nil
		},
	}

	router := newLinkingRouter(svc)

	req := staffRequest(httptest.NewRequest(http.MethodPost, "/reconcile", nil), "staff-7", auth.RoleStaff)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestReconcileRequiresIdentity(t *testing.T) {
	router := newLinkingRouter(&stubLinkingService{})

	req := httptest.NewRequest(http.MethodPost, "/reconcile", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestStatisticsReturnsCoverage(t *testing.T) {
	svc := &stubLinkingService{
		statsFn: func(context.Context) (services.LinkStatistics, error) {
			return services.LinkStatistics{
				TotalOrders:        10,
				OrdersWithChildren: 7,
				TotalDesignOrders:  20,
				Linked:             15,
				Unlinked:           5,
				LinkRate:           0.75,
			}, nil
		},
	}

	router := newLinkingRouter(svc)

	req := staffRequest(httptest.NewRequest(http.MethodGet, "/statistics", nil), "staff-7", auth.RoleStaff)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp services.LinkStatistics
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.OrdersWithChildren != 7 || resp.LinkRate != 0.75 {
		t.Fatalf("unexpected statistics: %+v", resp)
	}
}
