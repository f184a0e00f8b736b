// Package routeguard decides whether a protected view may be shown for the
// current session. Decide is a pure projection of session state: no side
// effects, no I/O, so callers can re-evaluate it on every state change.
package routeguard

import "github.com/securetask/authkit/internal/client/models"

// Verdict is the outcome of a guard decision.
type Verdict string

const (
	// VerdictAllow admits the caller to the requested view.
	VerdictAllow Verdict = "allow"
	// VerdictRedirect denies access; Decision.Target names where to send
	// the caller instead.
	VerdictRedirect Verdict = "redirect"
	// VerdictPending means the session is still being restored and no
	// final allow/deny should be rendered yet.
	VerdictPending Verdict = "pending"
)

// Target is a redirect destination.
type Target string

const (
	TargetLogin  Target = "login"
	TargetVerify Target = "verify"
)

// Requirement states what a view demands of the session.
type Requirement struct {
	RequireAuthenticated bool
	RequireVerified      bool
}

// Decision is the guard's answer. Target is set only for VerdictRedirect.
type Decision struct {
	Verdict Verdict
	Target  Target
}

// Allowed reports whether the view may be rendered.
func (d Decision) Allowed() bool { return d.Verdict == VerdictAllow }

// Decide evaluates requirement against the session.
//
// While the session status is Unknown the result is Pending: restore has not
// resolved and rendering a redirect now would flash the wrong view. An
// unauthenticated session redirects to login when authentication is required;
// an authenticated but unverified profile redirects to verification when
// verification is required.
func Decide(session models.Session, requirement Requirement) Decision {
	if session.Status == models.StatusUnknown {
		return Decision{Verdict: VerdictPending}
	}

	if requirement.RequireAuthenticated && session.Status != models.StatusAuthenticated {
		return Decision{Verdict: VerdictRedirect, Target: TargetLogin}
	}

	if requirement.RequireVerified &&
		session.Status == models.StatusAuthenticated &&
		session.Profile != nil && !session.Profile.EmailVerified {
		return Decision{Verdict: VerdictRedirect, Target: TargetVerify}
	}

	return Decision{Verdict: VerdictAllow}
}
