package services

import (
	"context"
	"delivery-estimate-service/internal/ports"
	"errors"
	"net"
	"net/http"
)

// Failure kinds reported in logs and metrics.
const (
	FailureTimeout     = "timeout"
	FailureNotFound    = "not_found"
	FailureMalformed   = "malformed"
	FailureRateLimited = "rate_limited"
	FailureRejected    = "rejected"
	FailureUnavailable = "unavailable"
	FailureUnexpected  = "unexpected"
)

// ClassifyFailure maps a provider, cache or store error to a failure kind.
func ClassifyFailure(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	switch {
	case errors.Is(err, ports.ErrNoResults):
		return FailureNotFound
	case errors.Is(err, ports.ErrMalformedResponse):
		return FailureMalformed
	case errors.Is(err, ports.ErrProviderRejected):
		return FailureRejected
	}

	var se *ports.StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusTooManyRequests {
			return FailureRateLimited
		}
		return FailureUnavailable
	}

	if errors.Is(err, context.Canceled) || errors.As(err, &netErr) {
		return FailureUnavailable
	}

	return FailureUnexpected
}
