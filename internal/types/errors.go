package types

import "errors"

// Sentinel errors shared across services. Handlers map these to HTTP
// status codes; expected steady-state outcomes (missing quote, empty
// match result, failed cancellation) are reported as absent values or
// booleans instead.
var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrTradeNotFound    = errors.New("trade not found")
	ErrInvalidSide      = errors.New("side must be BUY or SELL")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrInvalidPrice     = errors.New("price_per_unit must be positive")
	ErrMissingCommodity = errors.New("commodity_id is required")
	ErrExpiredValidity  = errors.New("valid_until must be in the future")
)

// ValidationError wraps an order validation failure so handlers can
// distinguish bad input from storage faults.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
