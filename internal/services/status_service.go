package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/stampforge/orders-api/internal/domain"
	"github.com/stampforge/orders-api/internal/repositories"
)

const (
	maxBulkOrders       = 100
	maxReasonLength     = 500
	overviewRecentLimit = 10
)

var (
	// ErrStatusInvalidInput signals the caller provided invalid data.
	ErrStatusInvalidInput = errors.New("status: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("status: order not found")
	// ErrStatusConflict indicates the update lost a transactional race.
	ErrStatusConflict = errors.New("status: conflict")
	// ErrPermissionDenied indicates the actor may not perform the operation.
	ErrPermissionDenied = errors.New("status: permission denied")
)

// StatusServiceDeps bundles collaborators required to construct the status service.
type StatusServiceDeps struct {
	Orders        repositories.OrderRepository
	DesignOrders  repositories.DesignOrderRepository
	AuditLogs     repositories.AuditLogRepository
	UnitOfWork    repositories.UnitOfWork
	Notifications NotificationDispatcher
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type statusService struct {
	orders        repositories.OrderRepository
	designOrders  repositories.DesignOrderRepository
	auditLogs     repositories.AuditLogRepository
	unitOfWork    repositories.UnitOfWork
	notifications NotificationDispatcher
	clock         func() time.Time
	logger        func(context.Context, string, map[string]any)
	reasonPolicy  *bluemonday.Policy
}

var _ StatusService = (*statusService)(nil)

// NewStatusService wires dependencies into a concrete StatusService implementation.
func NewStatusService(deps StatusServiceDeps) (StatusService, error) {
	if deps.Orders == nil {
		return nil, errors.New("status service: order repository is required")
	}
	if deps.DesignOrders == nil {
		return nil, errors.New("status service: design order repository is required")
	}
	if deps.AuditLogs == nil {
		return nil, errors.New("status service: audit log repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &statusService{
		orders:        deps.Orders,
		designOrders:  deps.DesignOrders,
		auditLogs:     deps.AuditLogs,
		unitOfWork:    unit,
		notifications: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:       logger,
		reasonPolicy: bluemonday.StrictPolicy(),
	}, nil
}

func (s *statusService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (StatusUpdateResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return StatusUpdateResult{}, fmt.Errorf("%w: order id is required", ErrStatusInvalidInput)
	}
	if !cmd.NewStatus.Known() {
		return StatusUpdateResult{}, &UnknownStatusError{Status: cmd.NewStatus}
	}

	reason, err := s.sanitizeReason(cmd.Reason)
	if err != nil {
		return StatusUpdateResult{}, err
	}

	if cmd.SkipValidation {
		if !cmd.ActorIsAdmin {
			return StatusUpdateResult{}, fmt.Errorf("%w: only admins may bypass transition validation", ErrPermissionDenied)
		}
		if reason == "" {
			return StatusUpdateResult{}, fmt.Errorf("%w: a reason is required when bypassing validation", ErrStatusInvalidInput)
		}
	}

	var (
		result StatusUpdateResult
		notify StatusChangeNotification
	)

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		children, err := s.loadDesignOrders(txCtx, order)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		if !cmd.SkipValidation {
			if err := ValidateTransition(order.Status, cmd.NewStatus); err != nil {
				return err
			}
		}

		now := s.clock()
		entry := StatusHistoryEntry{
			Previous:  order.Status,
			New:       cmd.NewStatus,
			ChangedAt: now,
			ChangedBy: strings.TrimSpace(cmd.ActorID),
			Reason:    reason,
			Automatic: cmd.Automatic,
		}

		previous := order.Status
		order.Status = cmd.NewStatus
		order.StatusHistory = append(order.StatusHistory, entry)
		order.StatusChangedAt = now
		order.UpdatedAt = now

		for i := range children {
			child := children[i]
			// Mirrored entries are equivalent to the parent's, so a manual
			// admin bypass stays visible as manual on the child too.
			child.StatusHistory = append(child.StatusHistory, StatusHistoryEntry{
				Previous:  child.Status,
				New:       cmd.NewStatus,
				ChangedAt: now,
				ChangedBy: entry.ChangedBy,
				Reason:    reason,
				Automatic: cmd.Automatic,
			})
			child.Status = cmd.NewStatus
			child.UpdatedAt = now
			if err := s.designOrders.Save(txCtx, child); err != nil {
				return s.mapRepositoryError(err)
			}
		}

		if err := s.orders.Save(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}

		result = StatusUpdateResult{
			Order:              order,
			Previous:           previous,
			DesignOrdersSynced: len(children),
		}
		notify = StatusChangeNotification{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			UserID:         order.UserID,
			ContactName:    order.Contact.Name,
			ContactEmail:   order.Contact.Email,
			PreviousStatus: previous,
			NewStatus:      cmd.NewStatus,
			Reason:         reason,
			ActorID:        entry.ChangedBy,
			Automatic:      cmd.Automatic,
			Problematic:    cmd.NewStatus.Problematic(),
			NotifyCustomer: cmd.NotifyCustomer,
			OccurredAt:     now,
		}
		return nil
	})
	if err != nil {
		return StatusUpdateResult{}, err
	}

	result.NotificationSent = s.dispatchNotification(ctx, notify)
	s.appendAudit(ctx, result, notify)

	return result, nil
}

func (s *statusService) BulkUpdateStatus(ctx context.Context, cmd BulkUpdateStatusCommand) (BulkUpdateStatusResult, error) {
	ids := uniqueOrderIDs(cmd.OrderIDs)
	if len(ids) == 0 {
		return BulkUpdateStatusResult{}, fmt.Errorf("%w: at least one order id is required", ErrStatusInvalidInput)
	}
	if len(ids) > maxBulkOrders {
		return BulkUpdateStatusResult{}, fmt.Errorf("%w: at most %d orders per bulk update", ErrStatusInvalidInput, maxBulkOrders)
	}
	if !cmd.NewStatus.Known() {
		return BulkUpdateStatusResult{}, &UnknownStatusError{Status: cmd.NewStatus}
	}

	result := BulkUpdateStatusResult{
		Total:     len(ids),
		Succeeded: make([]string, 0, len(ids)),
		Failed:    make([]BulkUpdateFailure, 0),
	}
	for _, id := range ids {
		_, err := s.UpdateStatus(ctx, UpdateStatusCommand{
			OrderID:        id,
			NewStatus:      cmd.NewStatus,
			Reason:         cmd.Reason,
			ActorID:        cmd.ActorID,
			ActorIsAdmin:   cmd.ActorIsAdmin,
			SkipValidation: cmd.SkipValidation,
			NotifyCustomer: cmd.NotifyCustomer,
		})
		if err != nil {
			result.Failed = append(result.Failed, BulkUpdateFailure{OrderID: id, Error: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

func (s *statusService) GetHistory(ctx context.Context, orderID string, limit int, offset int) (OrderHistory, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return OrderHistory{}, fmt.Errorf("%w: order id is required", ErrStatusInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return OrderHistory{}, s.mapRepositoryError(err)
	}

	audit, err := s.auditLogs.ListByOrder(ctx, order.ID, limit, offset)
	if err != nil {
		return OrderHistory{}, s.mapRepositoryError(err)
	}

	return OrderHistory{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         order.Status,
		OrderCreatedAt: order.CreatedAt,
		History:        order.StatusHistory,
		Audit:          audit,
	}, nil
}

func (s *statusService) ListOrders(ctx context.Context, query ListOrdersQuery) (domain.Page[Order], error) {
	filter := repositories.OrderListFilter{
		UserID: strings.TrimSpace(query.UserID),
		Limit:  query.Limit,
		Offset: query.Offset,
	}

	status := strings.TrimSpace(query.Status)
	category := strings.TrimSpace(query.Category)
	if status != "" && category != "" {
		return domain.Page[Order]{}, fmt.Errorf("%w: status and category filters are mutually exclusive", ErrStatusInvalidInput)
	}
	if status != "" {
		parsed, ok := domain.ParseOrderStatus(status)
		if !ok {
			return domain.Page[Order]{}, &UnknownStatusError{Status: domain.OrderStatus(status)}
		}
		filter.Statuses = []domain.OrderStatus{parsed}
	}
	if category != "" {
		parsed, ok := domain.ParseStatusCategory(category)
		if !ok {
			return domain.Page[Order]{}, fmt.Errorf("%w: unknown category %q", ErrStatusInvalidInput, category)
		}
		statuses, _ := domain.CategoryStatuses(parsed)
		filter.Statuses = statuses
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *statusService) Overview(ctx context.Context) (StatusOverview, error) {
	counts, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return StatusOverview{}, s.mapRepositoryError(err)
	}

	byStatus := make([]StatusBucket, 0, len(counts))
	countIndex := make(map[domain.OrderStatus]int64, len(counts))
	var total int64
	for _, count := range counts {
		countIndex[count.Status] = count.Count
		total += count.Count
		byStatus = append(byStatus, StatusBucket{
			Status:      count.Status,
			Description: count.Status.Description(),
			Count:       count.Count,
		})
	}

	byCategory := make([]CategoryBucket, 0, len(domain.AllCategories()))
	for _, category := range domain.AllCategories() {
		statuses, _ := domain.CategoryStatuses(category)
		var sum int64
		for _, status := range statuses {
			sum += countIndex[status]
		}
		byCategory = append(byCategory, CategoryBucket{Category: category, Count: sum})
	}

	open := make([]domain.OrderStatus, 0, 4)
	for _, category := range []domain.StatusCategory{domain.CategoryActive, domain.CategoryShipped} {
		statuses, _ := domain.CategoryStatuses(category)
		open = append(open, statuses...)
	}
	openValue, err := s.orders.SumAmountByStatuses(ctx, open)
	if err != nil {
		return StatusOverview{}, s.mapRepositoryError(err)
	}

	// Listing is ordered by most recent status change.
	recent, err := s.orders.List(ctx, repositories.OrderListFilter{Limit: overviewRecentLimit})
	if err != nil {
		return StatusOverview{}, s.mapRepositoryError(err)
	}

	return StatusOverview{
		Total:          total,
		ByStatus:       byStatus,
		ByCategory:     byCategory,
		OpenOrderValue: openValue,
		Recent:         recent.Items,
		GeneratedAt:    s.clock(),
	}, nil
}

func (s *statusService) ValidationRules(ctx context.Context) (ValidationRules, error) {
	if ctx == nil {
		return ValidationRules{}, errors.New("status service: context is required")
	}

	rules := make([]StatusRule, 0, len(domain.AllStatuses()))
	for _, status := range domain.AllStatuses() {
		allowed, _ := domain.AllowedTransitions(status)
		rules = append(rules, StatusRule{
			Status:             status,
			Description:        status.Description(),
			Terminal:           status.Terminal(),
			AllowedTransitions: allowed,
		})
	}

	categories := make([]CategoryRule, 0, len(domain.AllCategories()))
	for _, category := range domain.AllCategories() {
		statuses, _ := domain.CategoryStatuses(category)
		categories = append(categories, CategoryRule{Category: category, Statuses: statuses})
	}

	return ValidationRules{Rules: rules, Categories: categories}, nil
}

// loadDesignOrders gathers children through both link paths, deduplicated by
// document ID. All reads happen before any transactional write.
func (s *statusService) loadDesignOrders(ctx context.Context, order Order) ([]DesignOrder, error) {
	direct, err := s.designOrders.FindByOrderRef(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	legacy, err := s.designOrders.FindByOrderNumber(ctx, order.OrderNumber)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(direct)+len(legacy))
	merged := make([]DesignOrder, 0, len(direct)+len(legacy))
	for _, child := range direct {
		if seen[child.ID] {
			continue
		}
		seen[child.ID] = true
		merged = append(merged, child)
	}
	for _, child := range legacy {
		if seen[child.ID] {
			continue
		}
		seen[child.ID] = true
		merged = append(merged, child)
	}
	return merged, nil
}

func (s *statusService) dispatchNotification(ctx context.Context, notification StatusChangeNotification) bool {
	if s.notifications == nil {
		return false
	}
	outcome := s.notifications.DispatchStatusChange(ctx, notification)
	if len(outcome.Errors) > 0 {
		s.logger(ctx, "status.notification.failed", map[string]any{
			"order":  notification.OrderID,
			"status": string(notification.NewStatus),
			"errors": outcome.Errors,
		})
	}
	return outcome.AnySent()
}

func (s *statusService) appendAudit(ctx context.Context, result StatusUpdateResult, notification StatusChangeNotification) {
	_, err := s.auditLogs.Append(ctx, AuditLogEntry{
		OrderID:          result.Order.ID,
		OrderNumber:      result.Order.OrderNumber,
		Previous:         result.Previous,
		New:              result.Order.Status,
		ChangedBy:        notification.ActorID,
		Reason:           notification.Reason,
		Automatic:        notification.Automatic,
		DesignOrdersSync: result.DesignOrdersSynced,
		NotificationSent: result.NotificationSent,
		CreatedAt:        notification.OccurredAt,
	})
	if err != nil {
		s.logger(ctx, "status.audit.append.failed", map[string]any{
			"order": result.Order.ID,
			"error": err.Error(),
		})
	}
}

func (s *statusService) sanitizeReason(raw string) (string, error) {
	reason := strings.TrimSpace(s.reasonPolicy.Sanitize(raw))
	if len(reason) > maxReasonLength {
		return "", fmt.Errorf("%w: reason exceeds %d characters", ErrStatusInvalidInput, maxReasonLength)
	}
	return reason, nil
}

func (s *statusService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrStatusConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("status: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *statusService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func uniqueOrderIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		out = append(out, trimmed)
	}
	return out
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
