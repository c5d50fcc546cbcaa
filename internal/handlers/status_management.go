package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/stampforge/orders-api/internal/domain"
	"github.com/stampforge/orders-api/internal/platform/auth"
	"github.com/stampforge/orders-api/internal/platform/httpx"
	"github.com/stampforge/orders-api/internal/services"
)

const (
	defaultStatusPageSize    = 20
	maxStatusPageSize        = 100
	maxStatusUpdateBodySize  = 16 * 1024
	maxBulkUpdateBodySize    = 64 * 1024
	errorCodeInvalidRequest  = "invalid_request"
	errorCodeUnauthenticated = "unauthenticated"
)

type updateStatusRequest struct {
	Status         string `json:"status"`
	Reason         string `json:"reason"`
	NotifyCustomer *bool  `json:"notifyCustomer"`
	SkipValidation bool   `json:"skipValidation"`
}

type bulkUpdateStatusRequest struct {
	OrderIDs       []string `json:"orderIds"`
	Status         string   `json:"status"`
	Reason         string   `json:"reason"`
	NotifyCustomer *bool    `json:"notifyCustomer"`
	SkipValidation bool     `json:"skipValidation"`
}

type updateStatusResponse struct {
	Order              services.Order     `json:"order"`
	PreviousStatus     domain.OrderStatus `json:"previousStatus"`
	DesignOrdersSynced int                `json:"designOrdersSynced"`
	NotificationSent   bool               `json:"notificationSent"`
}

// StatusManagementHandlers exposes the staff-facing status lifecycle endpoints.
type StatusManagementHandlers struct {
	authn  *auth.Authenticator
	status services.StatusService
}

// NewStatusManagementHandlers constructs a new StatusManagementHandlers instance.
func NewStatusManagementHandlers(authn *auth.Authenticator, status services.StatusService) *StatusManagementHandlers {
	return &StatusManagementHandlers{
		authn:  authn,
		status: status,
	}
}

// Routes registers the /status-management endpoints.
func (h *StatusManagementHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/overview", h.overview)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}/history", h.orderHistory)
	r.Patch("/orders/{orderID}/status", h.updateStatus)
	r.Post("/bulk-update", h.bulkUpdate)
	r.Get("/validation-rules", h.validationRules)
}

func (h *StatusManagementHandlers) overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.status == nil {
		writeStatusServiceUnavailable(ctx, w)
		return
	}

	overview, err := h.status.Overview(ctx)
	if err != nil {
		writeStatusError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, overview)
}

func (h *StatusManagementHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.status == nil {
		writeStatusServiceUnavailable(ctx, w)
		return
	}

	query := r.URL.Query()
	limit, offset, err := parsePageParams(query.Get("limit"), query.Get("skip"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeInvalidRequest, err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.status.ListOrders(ctx, services.ListOrdersQuery{
		Status:   strings.TrimSpace(query.Get("status")),
		Category: strings.TrimSpace(query.Get("category")),
		UserID:   strings.TrimSpace(query.Get("userId")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeStatusError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, page)
}

func (h *StatusManagementHandlers) orderHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.status == nil {
		writeStatusServiceUnavailable(ctx, w)
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeInvalidRequest, "order id is required", http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	limit, offset, err := parsePageParams(query.Get("limit"), query.Get("skip"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeInvalidRequest, err.Error(), http.StatusBadRequest))
		return
	}

	history, err := h.status.GetHistory(ctx, orderID, limit, offset)
	if err != nil {
		writeStatusError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, history)
}

func (h *StatusManagementHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.status == nil {
		writeStatusServiceUnavailable(ctx, w)
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeUnauthenticated, "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeInvalidRequest, "order id is required", http.StatusBadRequest))
		return
	}

	var req updateStatusRequest
	if err := decodeJSONBody(w, r, maxStatusUpdateBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeInvalidRequest, err.Error(), http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeInvalidRequest, "status is required", http.StatusBadRequest))
		return
	}

	notify := true
	if req.NotifyCustomer != nil {
		notify = *req.NotifyCustomer
	}

	result, err := h.status.UpdateStatus(ctx, services.UpdateStatusCommand{
		OrderID:        orderID,
		NewStatus:      requestedStatus(req.Status),
		Reason:         strings.TrimSpace(req.Reason),
		ActorID:        strings.TrimSpace(identity.UID),
		ActorIsAdmin:   identity.HasRole(auth.RoleAdmin),
		SkipValidation: req.SkipValidation,
		NotifyCustomer: notify,
	})
	if err != nil {
		writeStatusError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, updateStatusResponse{
		Order:              result.Order,
		PreviousStatus:     result.Previous,
		DesignOrdersSynced: result.DesignOrdersSynced,
		NotificationSent:   result.NotificationSent,
	})
}

func (h *StatusManagementHandlers) bulkUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.status == nil {
		writeStatusServiceUnavailable(ctx, w)
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeUnauthenticated, "authentication required", http.StatusUnauthorized))
		return
	}

	var req bulkUpdateStatusRequest
	if err := decodeJSONBody(w, r, maxBulkUpdateBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeInvalidRequest, err.Error(), http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeInvalidRequest, "status is required", http.StatusBadRequest))
		return
	}

	notify := true
	if req.NotifyCustomer != nil {
		notify = *req.NotifyCustomer
	}

	result, err := h.status.BulkUpdateStatus(ctx, services.BulkUpdateStatusCommand{
		OrderIDs:       req.OrderIDs,
		NewStatus:      requestedStatus(req.Status),
		Reason:         strings.TrimSpace(req.Reason),
		ActorID:        strings.TrimSpace(identity.UID),
		ActorIsAdmin:   identity.HasRole(auth.RoleAdmin),
		SkipValidation: req.SkipValidation,
		NotifyCustomer: notify,
	})
	if err != nil {
		writeStatusError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

func (h *StatusManagementHandlers) validationRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.status == nil {
		writeStatusServiceUnavailable(ctx, w)
		return
	}

	rules, err := h.status.ValidationRules(ctx)
	if err != nil {
		writeStatusError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, rules)
}

// requestedStatus case-normalises client input so "Processing" and
// "processing" update alike. Unknown values pass through lowered and let the
// validator report them.
func requestedStatus(raw string) domain.OrderStatus {
	if status, ok := domain.ParseOrderStatus(raw); ok {
		return status
	}
	return domain.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
}

func writeStatusServiceUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("status_service_unavailable", "status service unavailable", http.StatusServiceUnavailable))
}

func writeStatusError(ctx context.Context, w http.ResponseWriter, err error) {
	var invalidTransition *services.InvalidTransitionError
	switch {
	case errors.As(err, &invalidTransition):
		allowed := make([]string, 0, len(invalidTransition.Allowed))
		for _, status := range invalidTransition.Allowed {
			allowed = append(allowed, string(status))
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", invalidTransition.Error(), http.StatusBadRequest).WithDetails(map[string]any{
			"currentStatus":   string(invalidTransition.Current),
			"requestedStatus": string(invalidTransition.Requested),
			"allowedActions":  allowed,
		}))
	case errors.Is(err, services.ErrUnknownStatus):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_status", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStatusInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeInvalidRequest, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrStatusConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "order was modified concurrently, retry the update", http.StatusConflict))
	case errors.Is(err, services.ErrPermissionDenied):
		httpx.WriteError(ctx, w, httpx.NewError("permission_denied", err.Error(), http.StatusForbidden))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

// parsePageParams parses offset pagination query values, clamping the limit to
// the allowed window.
func parsePageParams(limitRaw, skipRaw string) (int, int, error) {
	limit := defaultStatusPageSize
	if raw := strings.TrimSpace(limitRaw); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.New("limit must be an integer")
		}
		switch {
		case parsed <= 0:
			limit = defaultStatusPageSize
		case parsed > maxStatusPageSize:
			limit = maxStatusPageSize
		default:
			limit = parsed
		}
	}

	offset := 0
	if raw := strings.TrimSpace(skipRaw); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, 0, errors.New("skip must be a non-negative integer")
		}
		offset = parsed
	}
	return limit, offset, nil
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.New("request body must be valid JSON")
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
