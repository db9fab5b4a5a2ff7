// Package apperrors defines the error taxonomy shared by the engine
// and the exchange boundary.
package apperrors

import (
	"errors"
	"fmt"
)

// Standardized exchange errors. The exchange client maps venue
// responses onto these; reconciliation policy branches on them.
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrOrderRejected        = errors.New("order rejected")
	ErrInvalidOrder         = errors.New("invalid order parameter")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrNetwork              = errors.New("network error")
	ErrExchangeUnavailable  = errors.New("exchange unavailable")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrOrderNotFound        = errors.New("order not found")
	ErrDuplicateTrade       = errors.New("duplicate trade id")
	ErrTickInProgress       = errors.New("tick already in progress")
)

// IsTransient reports whether the error is worth retrying with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded) ||
		errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrExchangeUnavailable)
}

// IsRejection reports whether the exchange refused the order outright.
// Rejections put the grid level into backoff instead of being retried
// in-call.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrOrderRejected) ||
		errors.Is(err, ErrInvalidOrder)
}

// ConfigValidationError is fatal at startup.
type ConfigValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// InsufficientDataError means a balance response omitted an asset the
// configuration requires. The affected pair's tick aborts and retries
// on the next tick.
type InsufficientDataError struct {
	Asset string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("balance data missing for asset %s", e.Asset)
}
