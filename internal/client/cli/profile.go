package cli

import (
	"context"
	"fmt"

	"github.com/securetask/authkit/internal/client/models"
	"github.com/securetask/authkit/internal/client/routeguard"
)

// profileRequirement gates the profile view: it is the one protected view of
// the CLI and demands a verified account.
var profileRequirement = routeguard.Requirement{
	RequireAuthenticated: true,
	RequireVerified:      true,
}

// Profile shows the current user profile, going through the route guard the
// same way a protected page would.
func (a *App) Profile(ctx context.Context) error {
	sess := a.sessions.Session()

	switch d := routeguard.Decide(sess, profileRequirement); {
	case d.Verdict == routeguard.VerdictPending:
		printlnFn("Still restoring your session, try again in a moment")
		return nil
	case d.Verdict == routeguard.VerdictRedirect && d.Target == routeguard.TargetLogin:
		printlnFn("You need to log in first")
		return nil
	case d.Verdict == routeguard.VerdictRedirect && d.Target == routeguard.TargetVerify:
		printlnFn("Your email is not verified; run 'verify' first")
		return nil
	}

	printlnFn("Name:     " + sess.Profile.Name)
	printlnFn("Email:    " + sess.Profile.Email)
	printlnFn("User ID:  " + sess.Profile.UserID)
	printlnFn(fmt.Sprintf("Verified: %t", sess.Profile.EmailVerified))
	return nil
}

// Status prints the session state.
func (a *App) Status(ctx context.Context) error {
	sess := a.sessions.Session()
	switch sess.Status {
	case models.StatusAuthenticated:
		printlnFn("Logged in as " + sess.Profile.Email)
		if !sess.Profile.EmailVerified {
			printlnFn("Email not verified; run 'verify'")
		}
	case models.StatusAuthenticating:
		printlnFn("Login in progress")
	case models.StatusUnknown:
		printlnFn("Restoring session")
	default:
		printlnFn("Not logged in")
	}
	return nil
}
