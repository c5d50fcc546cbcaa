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

type stubStatusService struct {
	updateFn     func(ctx context.Context, cmd services.UpdateStatusCommand) (services.StatusUpdateResult, error)
	bulkFn       func(ctx context.Context, cmd services.BulkUpdateStatusCommand) (services.BulkUpdateStatusResult, error)
	historyFn    func(ctx context.Context, orderID string, limit, offset int) (services.OrderHistory, error)
	listFn       func(ctx context.Context, query services.ListOrdersQuery) (domain.Page[services.Order], error)
	overviewFn   func(ctx context.Context) (services.StatusOverview, error)
	validationFn func(ctx context.Context) (services.ValidationRules, error)
}

func (s *stubStatusService) UpdateStatus(ctx context.Context, cmd services.UpdateStatusCommand) (services.StatusUpdateResult, error) {
	if s.updateFn == nil {
		return services.StatusUpdateResult{}, errors.New("unexpected UpdateStatus call")
	}
	return s.updateFn(ctx, cmd)
}

func (s *stubStatusService) BulkUpdateStatus(ctx context.Context, cmd services.BulkUpdateStatusCommand) (services.BulkUpdateStatusResult, error) {
	if s.bulkFn == nil {
		return services.BulkUpdateStatusResult{}, errors.New("unexpected BulkUpdateStatus call")
	}
	return s.bulkFn(ctx, cmd)
}

func (s *stubStatusService) GetHistory(ctx context.Context, orderID string, limit, offset int) (services.OrderHistory, error) {
	if s.historyFn == nil {
		return services.OrderHistory{}, errors.New("unexpected GetHistory call")
	}
	return s.historyFn(ctx, orderID, limit, offset)
}

func (s *stubStatusService) ListOrders(ctx context.Context, query services.ListOrdersQuery) (domain.Page[services.Order], error) {
	if s.listFn == nil {
		return domain.Page[services.Order]{}, errors.New("unexpected ListOrders call")
	}
	return s.listFn(ctx, query)
}

func (s *stubStatusService) Overview(ctx context.Context) (services.StatusOverview, error) {
	if s.overviewFn == nil {
		return services.StatusOverview{}, errors.New("unexpected Overview call")
	}
	return s.overviewFn(ctx)
}

func (s *stubStatusService) ValidationRules(ctx context.Context) (services.ValidationRules, error) {
	if s.validationFn == nil {
		return services.ValidationRules{}, errors.New("unexpected ValidationRules call")
	}
	return s.validationFn(ctx)
}

var _ services.StatusService = (*stubStatusService)(nil)

func newStatusRouter(svc services.StatusService) chi.Router {
	h := NewStatusManagementHandlers(nil, svc)
	r := chi.NewRouter()
	r.Route("/", h.Routes)
	return r
}

func staffRequest(req *http.Request, uid string, roles ...string) *http.Request {
	identity := &auth.Identity{UID: uid, Roles: roles}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func TestUpdateStatusAppliesTransition(t *testing.T) {
	svc := &stubStatusService{
		updateFn: func(_ context.Context, cmd services.UpdateStatusCommand) (services.StatusUpdateResult, error) {
			if cmd.OrderID != "ord-1" {
				t.Fatalf("expected order id ord-1, got %s", cmd.OrderID)
			}
			if cmd.NewStatus != domain.OrderStatusProcessing {
				t.Fatalf("expected processing, got %s", cmd.NewStatus)
			}
			if cmd.ActorID != "staff-7" {
				t.Fatalf("expected actor staff-7, got %s", cmd.ActorID)
			}
			if cmd.ActorIsAdmin {
				t.Fatalf("staff actor must not be admin")
			}
			if !cmd.NotifyCustomer {
				t.Fatalf("notifyCustomer should default to true")
			}
			return services.StatusUpdateResult{
				Order:              services.Order{ID: "ord-1", Status: domain.OrderStatusProcessing},
				Previous:           domain.OrderStatusPending,
				DesignOrdersSynced: 2,
				NotificationSent:   true,
			}, nil
		},
	}

	router := newStatusRouter(svc)

	body := strings.NewReader(`{"status":"processing","reason":"picked up by fulfilment"}`)
	req := staffRequest(httptest.NewRequest(http.MethodPatch, "/orders/ord-1/status", body), "staff-7", auth.RoleStaff)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Order struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"order"`
		PreviousStatus     string `json:"previousStatus"`
		DesignOrdersSynced int    `json:"designOrdersSynced"`
		NotificationSent   bool   `json:"notificationSent"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.Status != "processing" || resp.PreviousStatus != "pending" {
		t.Fatalf("unexpected transition payload: %+v", resp)
	}
	if resp.DesignOrdersSynced != 2 || !resp.NotificationSent {
		t.Fatalf("unexpected side effect payload: %+v", resp)
	}
}

func TestUpdateStatusNormalisesCase(t *testing.T) {
	svc := &stubStatusService{
		updateFn: func(_ context.Context, cmd services.UpdateStatusCommand) (services.StatusUpdateResult, error) {
			if cmd.NewStatus != domain.OrderStatusProcessing {
				t.Fatalf("expected processing after normalisation, got %q", cmd.NewStatus)
			}
			return services.StatusUpdateResult{
				Order:    services.Order{ID: "ord-1", Status: domain.OrderStatusProcessing},
				Previous: domain.OrderStatusPending,
			}, nil
		},
		bulkFn: func(_ context.Context, cmd services.BulkUpdateStatusCommand) (services.BulkUpdateStatusResult, error) {
			if cmd.NewStatus != domain.OrderStatusShipped {
				t.Fatalf("expected shipped after normalisation, got %q", cmd.NewStatus)
			}
			return services.BulkUpdateStatusResult{Total: 1}, nil
		},
	}

	router := newStatusRouter(svc)

	body := strings.NewReader(`{"status":" Processing ","reason":"picked up"}`)
	req := staffRequest(httptest.NewRequest(http.MethodPatch, "/orders/ord-1/status", body), "staff-7", auth.RoleStaff)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body = strings.NewReader(`{"orderIds":["ord-1"],"status":"SHIPPED","reason":"carrier pickup"}`)
	req = staffRequest(httptest.NewRequest(http.MethodPost, "/bulk-update", body), "staff-7", auth.RoleStaff)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for bulk update, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateStatusAdminFlagAndOptOut(t *testing.T) {
	svc := &stubStatusService{
		updateFn: func(_ context.Context, cmd services.UpdateStatusCommand) (services.StatusUpdateResult, error) {
			if !cmd.ActorIsAdmin {
				t.Fatalf("expected admin actor")
			}
			if !cmd.SkipValidation {
				t.Fatalf("expected skipValidation to pass through")
			}
			if cmd.NotifyCustomer {
				t.Fatalf("expected notifyCustomer opt-out")
			}
			return services.StatusUpdateResult{Order: services.Order{ID: cmd.OrderID}}, nil
		},
	}

	router := newStatusRouter(svc)

	body := strings.NewReader(`{"status":"refunded","reason":"manual correction","skipValidation":true,"notifyCustomer":false}`)
	req := staffRequest(httptest.NewRequest(http.MethodPatch, "/orders/ord-2/status", body), "admin-1", auth.RoleAdmin)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateStatusInvalidTransitionIncludesAllowedActions(t *testing.T) {
	svc := &stubStatusService{
		updateFn: func(context.Context, services.UpdateStatusCommand) (services.StatusUpdateResult, error) {
			return services.StatusUpdateResult{}, &services.InvalidTransitionError{
				Current:   domain.OrderStatusPending,
				Requested: domain.OrderStatusDelivered,
				Allowed:   []domain.OrderStatus{domain.OrderStatusProcessing, domain.OrderStatusCancelled, domain.OrderStatusFailed},
			}
		},
	}

	router := newStatusRouter(svc)

	body := strings.NewReader(`{"status":"delivered"}`)
	req := staffRequest(httptest.NewRequest(http.MethodPatch, "/orders/ord-1/status", body), "staff-7", auth.RoleStaff)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	var resp struct {
		Error           string   `json:"error"`
		CurrentStatus   string   `json:"currentStatus"`
		RequestedStatus string   `json:"requestedStatus"`
		AllowedActions  []string `json:"allowedActions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %s", resp.Error)
	}
	if resp.CurrentStatus != "pending" || resp.RequestedStatus != "delivered" {
		t.Fatalf("unexpected edge in payload: %+v", resp)
	}
	if len(resp.AllowedActions) != 3 || resp.AllowedActions[0] != "processing" {
		t.Fatalf("unexpected allowed actions: %v", resp.AllowedActions)
	}
}

func TestUpdateStatusErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown status", &services.UnknownStatusError{Status: "teleported"}, http.StatusBadRequest, "unknown_status"},
		{"invalid input", services.ErrStatusInvalidInput, http.StatusBadRequest, "invalid_request"},
		{"not found", services.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
		{"conflict", services.ErrStatusConflict, http.StatusConflict, "conflict"},
		{"permission denied", services.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubStatusService{
				updateFn: func(context.Context, services.UpdateStatusCommand) (services.StatusUpdateResult, error) {
					return services.StatusUpdateResult{}, tc.err
				},
			}
			router := newStatusRouter(svc)

			body := strings.NewReader(`{"status":"processing"}`)
			req := staffRequest(httptest.NewRequest(http.MethodPatch, "/orders/ord-1/status", body), "staff-7", auth.RoleStaff)
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			var resp map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if resp["error"] != tc.code {
				t.Fatalf("expected error %s, got %v", tc.code, resp["error"])
			}
		})
	}
}

func TestUpdateStatusRejectsMissingStatus(t *testing.T) {
	router := newStatusRouter(&stubStatusService{})

	body := strings.NewReader(`{"reason":"no status supplied"}`)
	req := staffRequest(httptest.NewRequest(http.MethodPatch, "/orders/ord-1/status", body), "staff-7", auth.RoleStaff)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestUpdateStatusRequiresIdentity(t *testing.T) {
	router := newStatusRouter(&stubStatusService{})

	body := strings.NewReader(`{"status":"processing"}`)
	req := httptest.NewRequest(http.MethodPatch, "/orders/ord-1/status", body)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestBulkUpdateForwardsCommand(t *testing.T) {
	svc := &stubStatusService{
		bulkFn: func(_ context.Context, cmd services.BulkUpdateStatusCommand) (services.BulkUpdateStatusResult, error) {
			if len(cmd.OrderIDs) != 3 {
				t.Fatalf("expected 3 order ids, got %d", len(cmd.OrderIDs))
			}
			if cmd.NewStatus != domain.OrderStatusShipped {
				t.Fatalf("expected shipped, got %s", cmd.NewStatus)
			}
			return services.BulkUpdateStatusResult{
				Succeeded: []string{"ord-1", "ord-2"},
				Failed:    []services.BulkUpdateFailure{{OrderID: "ord-3", Error: "status: conflict"}},
			}, nil
		},
	}

	router := newStatusRouter(svc)

	body := strings.NewReader(`{"orderIds":["ord-1","ord-2","ord-3"],"status":"shipped","reason":"carrier pickup"}`)
	req := staffRequest(httptest.NewRequest(http.MethodPost, "/bulk-update", body), "staff-7", auth.RoleStaff)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp services.BulkUpdateStatusResult
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Succeeded) != 2 || len(resp.Failed) != 1 {
		t.Fatalf("unexpected bulk result: %+v", resp)
	}
	if resp.Failed[0].OrderID != "ord-3" {
		t.Fatalf("expected ord-3 failure, got %+v", resp.Failed[0])
	}
}

func TestListOrdersParsesQuery(t *testing.T) {
	svc := &stubStatusService{
		listFn: func(_ context.Context, query services.ListOrdersQuery) (domain.Page[services.Order], error) {
			if query.Status != "processing" {
				t.Fatalf("expected status filter processing, got %q", query.Status)
			}
			if query.Limit != 5 || query.Offset != 10 {
				t.Fatalf("expected limit 5 offset 10, got %d/%d", query.Limit, query.Offset)
			}
			return domain.Page[services.Order]{
				Items:   []services.Order{{ID: "ord-1"}},
				Total:   11,
				HasMore: true,
			}, nil
		},
	}

	router := newStatusRouter(svc)

	req := staffRequest(httptest.NewRequest(http.MethodGet, "/orders?status=processing&limit=5&skip=10", nil), "staff-7", auth.RoleStaff)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var page struct {
		Items   []map[string]any `json:"items"`
		Total   int64            `json:"total"`
		HasMore bool             `json:"hasMore"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if page.Total != 11 || !page.HasMore || len(page.Items) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestListOrdersRejectsBadPagination(t *testing.T) {
	router := newStatusRouter(&stubStatusService{})

	req := staffRequest(httptest.NewRequest(http.MethodGet, "/orders?limit=abc", nil), "staff-7", auth.RoleStaff)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHistoryRoutesParams(t *testing.T) {
	svc := &stubStatusService{
		historyFn: func(_ context.Context, orderID string, limit, offset int) (services.OrderHistory, error) {
			if orderID != "ord-9" {
				t.Fatalf("expected ord-9, got %s", orderID)
			}
			if limit != defaultStatusPageSize || offset != 0 {
				t.Fatalf("expected default pagination, got %d/%d", limit, offset)
			}
			return services.OrderHistory{OrderID: orderID, Status: domain.OrderStatusShipped}, nil
		},
	}

	router := newStatusRouter(svc)

	req := staffRequest(httptest.NewRequest(http.MethodGet, "/orders/ord-9/history", nil), "staff-7", auth.RoleStaff)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		OrderID string `json:"orderId"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.OrderID != "ord-9" || resp.Status != "shipped" {
		t.Fatalf("unexpected history payload: %+v", resp)
	}
}

func TestOverviewReturnsSnapshot(t *testing.T) {
	svc := &stubStatusService{
		overviewFn: func(context.Context) (services.StatusOverview, error) {
			return services.StatusOverview{
				Total: 42,
				ByStatus: []services.StatusBucket{
					{Status: domain.OrderStatusPending, Count: 12},
				},
				OpenOrderValue: 99000,
			}, nil
		},
	}

	router := newStatusRouter(svc)

	req := staffRequest(httptest.NewRequest(http.MethodGet, "/overview", nil), "staff-7", auth.RoleStaff)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Total          int64 `json:"total"`
		OpenOrderValue int64 `json:"openOrderValue"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Total != 42 || resp.OpenOrderValue != 99000 {
		t.Fatalf("unexpected overview: %+v", resp)
	}
}

func TestValidationRulesExposesTransitionTable(t *testing.T) {
	svc := &stubStatusService{
		validationFn: func(context.Context) (services.ValidationRules, error) {
			return services.ValidationRules{
				Rules: []services.StatusRule{
					{Status: domain.OrderStatusCompleted, Terminal: true},
				},
			}, nil
		},
	}

	router := newStatusRouter(svc)

	req := staffRequest(httptest.NewRequest(http.MethodGet, "/validation-rules", nil), "staff-7", auth.RoleStaff)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Rules []struct {
			Status   string `json:"status"`
			Terminal bool   `json:"terminal"`
		} `json:"rules"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Rules) != 1 || !resp.Rules[0].Terminal {
		t.Fatalf("unexpected rules payload: %+v", resp)
	}
}
