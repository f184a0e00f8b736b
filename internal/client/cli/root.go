package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/securetask/authkit/internal/client/models"
)

func (a *App) getStatus() string {
	sess := a.sessions.Session()
	switch sess.Status {
	case models.StatusAuthenticated:
		mark := ""
		if sess.Profile != nil && !sess.Profile.EmailVerified {
			mark = " unverified"
		}
		return fmt.Sprintf("(%s%s)", sess.Profile.Email, mark)
	case models.StatusAuthenticating:
		return "(logging in)"
	case models.StatusUnknown:
		return "(restoring)"
	default:
		return ""
	}
}

// Root runs the REPL against stdin until the user exits.
func (a *App) Root(ctx context.Context) {
	printlnFn("Welcome to the authkit CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}
