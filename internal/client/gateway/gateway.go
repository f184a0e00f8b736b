package gateway

import (
	"context"

	"github.com/securetask/authkit/internal/client/models"
)

// LoginResult is what a successful login returns: the bearer token plus the
// email echoed back by the backend. The profile itself is fetched separately.
type LoginResult struct {
	Token string
	Email string
}

// Gateway is the transport-agnostic contract to the identity backend.
//
// Every operation is a single call that either resolves with a typed result or
// fails with a *Error. The gateway performs no side effects beyond the network
// call itself; persisting or clearing session state is the session store's job.
//
// All methods honor context cancellation and the gateway's per-call timeout.
type Gateway interface {
	// Register creates an account. It does not establish a session.
	// Fails KindValidation on malformed input, KindConflict when the
	// email is already registered.
	Register(ctx context.Context, name, email, password string) (models.UserProfile, error)

	// Login exchanges credentials for a bearer token.
	// Fails KindUnauthorized on bad credentials.
	Login(ctx context.Context, email, password string) (LoginResult, error)

	// Logout invalidates the server-side session. Best effort: the caller
	// is expected to swallow failures.
	Logout(ctx context.Context) error

	// GetProfile fetches the profile for the active session.
	// Fails KindUnauthorized when there is none.
	GetProfile(ctx context.Context) (models.UserProfile, error)

	// IsAuthenticated asks the backend whether the current token is valid.
	IsAuthenticated(ctx context.Context) (bool, error)

	// SendVerificationOtp mails a verification code to the session's email.
	SendVerificationOtp(ctx context.Context) error

	// VerifyOtp submits a verification code for the active session.
	// A wrong or expired code fails KindValidation.
	VerifyOtp(ctx context.Context, code string) error

	// SendResetOtp mails a password-reset code. Unauthenticated.
	SendResetOtp(ctx context.Context, email string) error

	// ResetPassword completes a reset with the mailed code. Unauthenticated.
	ResetPassword(ctx context.Context, email, code, newPassword string) error

	// SetAuthToken installs the bearer token attached to subsequent calls.
	// An empty string clears it.
	SetAuthToken(token string)

	// Close releases transport resources.
	Close() error
}
