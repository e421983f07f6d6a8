package shared

import "errors"

// Domain failure kinds. These are rule violations, never transient faults;
// services return them untouched and the HTTP edge translates them.
var (
	// ErrInsufficientStock indicates a debit would drive a stock level below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidTransition indicates a status change from a state that does not permit it.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrOverpayment indicates a payment would push paid amount above the document total.
	ErrOverpayment = errors.New("payment exceeds balance due")
	// ErrInvalidInput indicates malformed or degenerate input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)

// UserSafeMessage returns a message suitable for end users. Domain failures
// carry their own text; anything else is masked.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrOverpayment),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNotFound):
		return err.Error()
	default:
		return "internal error"
	}
}
