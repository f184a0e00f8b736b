// Package models defines client-side data models shared by the session store,
// the verification flows, and the route guard.
package models

// Status describes where the session currently is in its lifecycle.
//
// Unknown is the process-start state before Restore has resolved;
// Authenticating covers an in-flight login or restore; Authenticated and
// Anonymous are the two settled states.
type Status string

const (
	StatusUnknown        Status = "unknown"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
	StatusAnonymous      Status = "anonymous"
)

// UserProfile is the backend's view of the account. It is replaced wholesale
// on every successful fetch; the only field that is ever flipped in place is
// EmailVerified, after a successful verification OTP.
type UserProfile struct {
	UserID        string `json:"userId"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
}

// Session is the authentication state owned by the session store.
//
// Invariant: Status == StatusAuthenticated iff both Token and Profile are set;
// Status == StatusAnonymous iff both are absent. The other two statuses are
// transient.
type Session struct {
	Token   string
	Profile *UserProfile
	Status  Status
}

// Authenticated reports whether the session carries both a token and a profile.
func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Token != "" && s.Profile != nil
}
