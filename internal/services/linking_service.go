package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/stampforge/orders-api/internal/domain"
	"github.com/stampforge/orders-api/internal/repositories"
)

const defaultReconcileLimit = 50

// ErrLinkingInvalidInput signals the caller provided invalid data.
var ErrLinkingInvalidInput = errors.New("linking: invalid input")

// LinkingServiceDeps bundles collaborators required to construct the linking service.
type LinkingServiceDeps struct {
	Orders       repositories.OrderRepository
	DesignOrders repositories.DesignOrderRepository
	UnitOfWork   repositories.UnitOfWork
	Clock        func() time.Time
	Logger       func(ctx context.Context, event string, fields map[string]any)
	// ReconcileLimit caps a reconciliation run when the caller does not
	// provide its own limit. Zero falls back to the package default.
	ReconcileLimit int
}

type linkingService struct {
	orders         repositories.OrderRepository
	designOrders   repositories.DesignOrderRepository
	unitOfWork     repositories.UnitOfWork
	clock          func() time.Time
	logger         func(context.Context, string, map[string]any)
	reconcileLimit int
}

var _ LinkingService = (*linkingService)(nil)

// NewLinkingService wires dependencies into a concrete LinkingService implementation.
func NewLinkingService(deps LinkingServiceDeps) (LinkingService, error) {
	if deps.Orders == nil {
		return nil, errors.New("linking service: order repository is required")
	}
	if deps.DesignOrders == nil {
		return nil, errors.New("linking service: design order repository is required")
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

	reconcileLimit := deps.ReconcileLimit
	if reconcileLimit <= 0 {
		reconcileLimit = defaultReconcileLimit
	}

	return &linkingService{
		orders:       deps.Orders,
		designOrders: deps.DesignOrders,
		unitOfWork:   unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:         logger,
		reconcileLimit: reconcileLimit,
	}, nil
}

func (s *linkingService) GetOrderWithDesignOrders(ctx context.Context, orderID string) (OrderWithDesignOrders, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return OrderWithDesignOrders{}, fmt.Errorf("%w: order id is required", ErrLinkingInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return OrderWithDesignOrders{}, s.mapRepositoryError(err)
	}

	direct, err := s.designOrders.FindByOrderRef(ctx, order.ID)
	if err != nil {
		return OrderWithDesignOrders{}, s.mapRepositoryError(err)
	}
	legacy, err := s.designOrders.FindByOrderNumber(ctx, order.OrderNumber)
	if err != nil {
		return OrderWithDesignOrders{}, s.mapRepositoryError(err)
	}

	result := OrderWithDesignOrders{Order: order}
	seen := make(map[string]bool, len(direct)+len(legacy))
	for _, child := range direct {
		if seen[child.ID] {
			continue
		}
		seen[child.ID] = true
		result.DesignOrders = append(result.DesignOrders, LinkedDesignOrder{DesignOrder: child, Strategy: LinkStrategyReference})
		result.LinkedCount++
	}
	for _, child := range legacy {
		if seen[child.ID] {
			continue
		}
		seen[child.ID] = true
		result.DesignOrders = append(result.DesignOrders, LinkedDesignOrder{DesignOrder: child, Strategy: LinkStrategyNumber})
		result.LegacyCount++
	}
	return result, nil
}

func (s *linkingService) FindOrphanedDesignOrders(ctx context.Context, limit int, offset int) (domain.Page[OrphanedDesignOrder], error) {
	page, err := s.designOrders.ListUnlinked(ctx, limit, offset)
	if err != nil {
		return domain.Page[OrphanedDesignOrder]{}, s.mapRepositoryError(err)
	}

	items := make([]OrphanedDesignOrder, 0, len(page.Items))
	for _, child := range page.Items {
		orphan := OrphanedDesignOrder{DesignOrder: child}
		parent, err := s.resolveParent(ctx, child.OrderNumber)
		if err != nil {
			return domain.Page[OrphanedDesignOrder]{}, err
		}
		if parent != nil {
			orphan.ParentOrderID = parent.ID
			orphan.ParentFound = true
		}
		items = append(items, orphan)
	}

	return domain.Page[OrphanedDesignOrder]{
		Items:   items,
		Total:   page.Total,
		HasMore: page.HasMore,
	}, nil
}

func (s *linkingService) ReconcileOrphans(ctx context.Context, cmd ReconcileOrphansCommand) (ReconcileOrphansResult, error) {
	limit := cmd.Limit
	if limit <= 0 {
		limit = s.reconcileLimit
	}

	page, err := s.designOrders.ListUnlinked(ctx, limit, 0)
	if err != nil {
		return ReconcileOrphansResult{}, s.mapRepositoryError(err)
	}

	result := ReconcileOrphansResult{
		Examined: len(page.Items),
		Failures: make([]ReconcileFailure, 0),
		DryRun:   cmd.DryRun,
	}

	for _, child := range page.Items {
		parent, err := s.resolveParent(ctx, child.OrderNumber)
		if err != nil {
			result.Failures = append(result.Failures, ReconcileFailure{DesignOrderID: child.ID, Error: err.Error()})
			continue
		}
		if parent == nil {
			result.Unmatched++
			continue
		}
		if cmd.DryRun {
			result.Linked++
			continue
		}
		if err := s.link(ctx, parent.ID, child.ID); err != nil {
			result.Failures = append(result.Failures, ReconcileFailure{DesignOrderID: child.ID, Error: err.Error()})
			continue
		}
		result.Linked++
	}

	s.logger(ctx, "linking.reconcile.completed", map[string]any{
		"examined":  result.Examined,
		"linked":    result.Linked,
		"unmatched": result.Unmatched,
		"failures":  len(result.Failures),
		"dryRun":    cmd.DryRun,
		"actor":     strings.TrimSpace(cmd.ActorID),
	})

	return result, nil
}

func (s *linkingService) Statistics(ctx context.Context) (LinkStatistics, error) {
	totalDesignOrders, err := s.designOrders.Count(ctx)
	if err != nil {
		return LinkStatistics{}, s.mapRepositoryError(err)
	}
	linked, err := s.designOrders.CountLinked(ctx)
	if err != nil {
		return LinkStatistics{}, s.mapRepositoryError(err)
	}
	totalOrders, err := s.countOrders(ctx)
	if err != nil {
		return LinkStatistics{}, err
	}
	refs, err := s.designOrders.ListLinkedRefs(ctx)
	if err != nil {
		return LinkStatistics{}, s.mapRepositoryError(err)
	}
	parents := make(map[string]bool, len(refs))
	for _, ref := range refs {
		parents[ref] = true
	}

	stats := LinkStatistics{
		TotalOrders:        totalOrders,
		OrdersWithChildren: int64(len(parents)),
		TotalDesignOrders:  totalDesignOrders,
		Linked:             linked,
		Unlinked:           totalDesignOrders - linked,
		GeneratedAt:        s.clock(),
	}
	if totalDesignOrders > 0 {
		stats.LinkRate = float64(linked) / float64(totalDesignOrders)
	}
	return stats, nil
}

// link stamps the direct reference on the child and records it on the parent
// inside one transaction. The child is re-read to avoid clobbering a
// concurrent relink.
func (s *linkingService) link(ctx context.Context, orderID string, designOrderID string) error {
	return s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		child, err := s.designOrders.FindByID(txCtx, designOrderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if child.Linked() {
			return nil
		}

		now := s.clock()
		ref := order.ID
		child.OrderRef = &ref
		child.UpdatedAt = now
		if err := s.designOrders.Save(txCtx, child); err != nil {
			return s.mapRepositoryError(err)
		}

		if !containsString(order.DesignOrderRefs, child.ID) {
			order.DesignOrderRefs = append(order.DesignOrderRefs, child.ID)
			order.UpdatedAt = now
			if err := s.orders.Save(txCtx, order); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		return nil
	})
}

// resolveParent returns nil without error when no order carries the number.
func (s *linkingService) resolveParent(ctx context.Context, orderNumber string) (*Order, error) {
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return nil, nil
	}
	order, err := s.orders.FindByOrderNumber(ctx, number)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil, nil
		}
		return nil, s.mapRepositoryError(err)
	}
	return &order, nil
}

func (s *linkingService) countOrders(ctx context.Context) (int64, error) {
	counts, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	var total int64
	for _, count := range counts {
		total += count.Count
	}
	return total, nil
}

func (s *linkingService) mapRepositoryError(err error) error {
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
			return fmt.Errorf("linking: repository unavailable: %w", err)
		}
	}

	return err
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
