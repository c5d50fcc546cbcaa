package services

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/stampforge/orders-api/internal/domain"
)

var (
	// ErrInvalidTransition indicates the requested status change violates the transition table.
	ErrInvalidTransition = errors.New("status: invalid transition")
	// ErrUnknownStatus indicates a status outside the known lifecycle.
	ErrUnknownStatus = errors.New("status: unknown status")
)

// InvalidTransitionError carries the rejected edge and the allowed
// alternatives so callers can surface an actionable message.
type InvalidTransitionError struct {
	Current   domain.OrderStatus
	Requested domain.OrderStatus
	Allowed   []domain.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	if e == nil {
		return ""
	}
	allowed := make([]string, 0, len(e.Allowed))
	for _, status := range e.Allowed {
		allowed = append(allowed, string(status))
	}
	if len(allowed) == 0 {
		return fmt.Sprintf("status: cannot transition from %s to %s: %s is terminal", e.Current, e.Requested, e.Current)
	}
	return fmt.Sprintf("status: cannot transition from %s to %s: allowed are %s", e.Current, e.Requested, strings.Join(allowed, ", "))
}

// Is lets errors.Is match the sentinel.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// UnknownStatusError names the status missing from the transition table.
type UnknownStatusError struct {
	Status domain.OrderStatus
}

func (e *UnknownStatusError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("status: unknown status %q", string(e.Status))
}

// Is lets errors.Is match the sentinel.
func (e *UnknownStatusError) Is(target error) bool {
	return target == ErrUnknownStatus
}

// ValidateTransition checks the requested edge against the transition table.
// Re-applying the current status is rejected; retries are safe because a
// failed update commits nothing.
func ValidateTransition(current, requested domain.OrderStatus) error {
	if !current.Known() {
		return &UnknownStatusError{Status: current}
	}
	if !requested.Known() {
		return &UnknownStatusError{Status: requested}
	}

	allowed, _ := domain.AllowedTransitions(current)
	for _, status := range allowed {
		if status == requested {
			return nil
		}
	}
	return &InvalidTransitionError{Current: current, Requested: requested, Allowed: allowed}
}
