// Package gateway contains the client-side contract to the identity backend.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Gateway interface) covering
//     register/login/logout, profile fetch, the authentication probe, and the
//     OTP operations for email verification and password reset.
//  2. A concrete HTTP/JSON implementation (see HTTPGateway) that carries the
//     bearer token in the Authorization header, stamps every request with an
//     X-Request-Id, retries idempotent reads on transient network failures,
//     and maps transport failures and HTTP statuses to *Error values.
//
// # Error Handling
//
// All failures surface as *Error with a closed Kind set. This is the only
// layer allowed to construct *Error; callers match with errors.As or the
// KindOf/IsUnauthorized/IsRetryable helpers and propagate unchanged.
//
// Concurrency & Contexts
//
// HTTPGateway is safe for concurrent use. All operations accept a
// context.Context and are additionally bounded by the gateway's per-call
// timeout.
package gateway
