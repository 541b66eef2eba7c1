package ports

import (
	"errors"
	"fmt"
)

// Provider failure modes. Adapters wrap these so callers can tell expected
// degradation apart from bugs.
var (
	// ErrNoResults means the provider answered but knows no such address.
	ErrNoResults = errors.New("no results for address")
	// ErrMalformedResponse means the answer could not be decoded or was
	// missing required fields.
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrProviderRejected means the provider refused the request (quota,
	// bad key, invalid request) without an HTTP error status.
	ErrProviderRejected = errors.New("provider rejected request")
)

// Store lookups that matched no row.
var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrEstimateNotFound = errors.New("estimate not found")
)

// ErrOrderNotDeliverable means the order exists but is already delivered or
// cancelled.
var ErrOrderNotDeliverable = errors.New("order already delivered or cancelled")

// StatusError is a non-2xx HTTP answer from a provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	switch e.Code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
