package budget

import (
	"errors"
	"fmt"
)

// Error types for quota violations and caller errors.
var (
	// ErrQuotaExceeded is returned when a budget cannot grant an acquisition.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidAmount is returned when a negative amount is acquired or released.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUnknownMember is returned when a composite has no member with the requested name.
	ErrUnknownMember = errors.New("unknown limiter member")

	// ErrUnknownIdentity is returned when releasing an identity that has no live budget.
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrEmptyIdentity is returned when an identity budget is requested for
	// the empty key, which stands for a caller with no identity yet.
	ErrEmptyIdentity = errors.New("identity cannot be empty")
)

// QuotaError provides detailed context about a rejected acquisition.
// It wraps ErrQuotaExceeded.
type QuotaError struct {
	// Limiter is the name of the budget that rejected the acquisition.
	Limiter string

	// Capacity is the budget's capacity.
	Capacity int64

	// Used is the budget's used count at the time of the rejection.
	Used int64

	// Requested is the amount that was asked for.
	Requested int64
}

// Error implements the error interface.
func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: requested=%d, used=%d, capacity=%d",
		e.Limiter, e.Requested, e.Used, e.Capacity)
}

// Unwrap returns ErrQuotaExceeded so callers can use errors.Is.
func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}

func invalidAmount(op string, amount int64) error {
	return fmt.Errorf("%s %d: %w (>=0 required)", op, amount, ErrInvalidAmount)
}
