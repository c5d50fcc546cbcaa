package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stampforge/orders-api/internal/platform/auth"
	"github.com/stampforge/orders-api/internal/platform/httpx"
	"github.com/stampforge/orders-api/internal/services"
)

const maxReconcileBodySize = 4 * 1024

type reconcileRequest struct {
	Limit  int  `json:"limit"`
	DryRun bool `json:"dryRun"`
}

// LinkingHandlers exposes the design order linking and reconciliation endpoints.
type LinkingHandlers struct {
	authn   *auth.Authenticator
	linking services.LinkingService
}

// NewLinkingHandlers constructs a new LinkingHandlers instance.
func NewLinkingHandlers(authn *auth.Authenticator, linking services.LinkingService) *LinkingHandlers {
	return &LinkingHandlers{
		authn:   authn,
		linking: linking,
	}
}

// Routes registers the /linking endpoints.
func (h *LinkingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/orders/{orderID}", h.orderWithDesignOrders)
	r.Get("/orphans", h.listOrphans)
	r.Post("/reconcile", h.reconcile)
	r.Get("/statistics", h.statistics)
}

func (h *LinkingHandlers) orderWithDesignOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.linking == nil {
		writeLinkingServiceUnavailable(ctx, w)
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeInvalidRequest, "order id is required", http.StatusBadRequest))
		return
	}

	resolved, err := h.linking.GetOrderWithDesignOrders(ctx, orderID)
	if err != nil {
		writeLinkingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, resolved)
}

func (h *LinkingHandlers) listOrphans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.linking == nil {
		writeLinkingServiceUnavailable(ctx, w)
		return
	}

	query := r.URL.Query()
	limit, offset, err := parsePageParams(query.Get("limit"), query.Get("skip"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeInvalidRequest, err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.linking.FindOrphanedDesignOrders(ctx, limit, offset)
	if err != nil {
		writeLinkingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, page)
}

func (h *LinkingHandlers) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.linking == nil {
		writeLinkingServiceUnavailable(ctx, w)
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeUnauthenticated, "authentication required", http.StatusUnauthorized))
		return
	}

	var req reconcileRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSONBody(w, r, maxReconcileBodySize, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError(errorCodeInvalidRequest, err.Error(), http.StatusBadRequest))
			return
		}
	}
	if req.Limit < 0 {
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeInvalidRequest, "limit must be non-negative", http.StatusBadRequest))
		return
	}

	result, err := h.linking.ReconcileOrphans(ctx, services.ReconcileOrphansCommand{
		Limit:   req.Limit,
		DryRun:  req.DryRun,
		ActorID: strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeLinkingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

func (h *LinkingHandlers) statistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.linking == nil {
		writeLinkingServiceUnavailable(ctx, w)
		return
	}

	stats, err := h.linking.Statistics(ctx)
	if err != nil {
		writeLinkingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, stats)
}

func writeLinkingServiceUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("linking_service_unavailable", "linking service unavailable", http.StatusServiceUnavailable))
}

func writeLinkingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrLinkingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError(errorCodeInvalidRequest, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrStatusConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "document was modified concurrently, retry the request", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
