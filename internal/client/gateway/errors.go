package gateway

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a gateway failure. The set is closed: transport and HTTP
// details are folded into exactly one of these at the gateway boundary and
// higher layers only ever branch on Kind.
type Kind string

const (
	// KindValidation covers malformed input rejected by the backend
	// (or an invalid/expired OTP challenge, which the backend reports
	// the same way).
	KindValidation Kind = "validation"
	// KindUnauthorized means the session is missing, expired, or revoked.
	KindUnauthorized Kind = "unauthorized"
	// KindConflict covers uniqueness violations, e.g. an already
	// registered email.
	KindConflict Kind = "conflict"
	// KindRateLimited means the backend throttled the call (OTP resends).
	KindRateLimited Kind = "rate_limited"
	// KindNetwork covers transport failures and timeouts; always retryable.
	KindNetwork Kind = "network"
	// KindUnknown is the fallback for anything unclassified.
	KindUnknown Kind = "unknown"
)

// Error is the single error type produced by the gateway. SessionStore and the
// verification flows propagate it unchanged; only the gateway constructs it.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool

	// RetryAfter carries the backend's retry guidance for KindRateLimited
	// when the response included one; zero otherwise.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf extracts the Kind from err, or KindUnknown when err was not produced
// by the gateway.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// IsUnauthorized reports whether err is a gateway error with KindUnauthorized.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// IsRetryable reports whether err is a gateway error the caller may retry.
func IsRetryable(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Retryable
}
