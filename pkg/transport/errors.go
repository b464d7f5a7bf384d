package transport

import "errors"

// These are wrapped inside *billing.RemoteError of kind transport, so callers
// can test for billing.ErrTransport first and narrow down with these.
var (
	ErrCircuitOpen      = errors.New("billing endpoint circuit breaker is open")
	ErrEncodeRequest    = errors.New("failed to encode billing request")
	ErrDecodeResponse   = errors.New("failed to decode billing response")
	ErrRequestFailed    = errors.New("billing request failed")
	ErrResponseTooLarge = errors.New("billing response body too large")
	ErrServerError      = errors.New("billing service error")
)

// IsCircuitOpen reports whether err was caused by an open circuit breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
