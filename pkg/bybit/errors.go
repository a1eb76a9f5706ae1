package bybit

import (
	"errors"
	"fmt"
)

// APIError is a non-zero retCode returned by the exchange.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit: retCode=%d retMsg=%q", e.Code, e.Msg)
}

// Bybit V5 retCodes that indicate a transient condition: an identical
// retry can succeed once the upstream clears.
var retryableCodes = map[int]bool{
	10002:  true, // request timestamp outside recv_window
	10006:  true, // rate limit exceeded
	10016:  true, // service error / maintenance
	170007: true, // backend timeout
}

// retCodes for order rejections the client can fix by re-reading the
// instrument filters and re-deriving the quantity. Anything outside
// this and the transient set (bad credentials, risk limits) will not
// succeed no matter what the client adjusts.
var correctableCodes = map[int]bool{
	10001:  true, // request parameter error (qty precision, step)
	110003: true, // order price/qty outside the instrument filters
	110007: true, // insufficient available balance for the quantity
}

// Retryable reports whether err is worth retrying as-is: network
// failures and transient exchange errors are, rejections are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retryableCodes[apiErr.Code]
	}
	// Transport-level failures (timeouts, resets, DNS) are retryable.
	return true
}

// Correctable reports whether err is an order rejection that a refreshed
// instrument spec and a re-validated quantity may fix.
func Correctable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && correctableCodes[apiErr.Code]
}
