package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound          = errors.New("replenishment order not found")
	ErrInsufficientStock      = errors.New("insufficient warehouse stock")
	ErrStockNotFound          = errors.New("stock record not found")
	ErrConcurrentModification = errors.New("replenishment order was modified concurrently")
	ErrOrderExists            = errors.New("replenishment order already exists")

	// ErrUnavailable wraps failures reaching the ledger, stock store or broker.
	ErrUnavailable = errors.New("dependency unavailable")
)

// ReasonTransitionInProgress marks a rejection caused by another trigger
// holding the order's transition lease.
const ReasonTransitionInProgress = "transition in progress"

// IllegalTransitionError is returned when the transition table does not
// allow From -> To.
type IllegalTransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("illegal transition from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("illegal transition from %s to %s", e.From, e.To)
}

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsIllegalTransition reports whether err is an IllegalTransitionError.
func IsIllegalTransition(err error) bool {
	var target *IllegalTransitionError
	return errors.As(err, &target)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
