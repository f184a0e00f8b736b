package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/securetask/authkit/internal/client/routeguard"
	"github.com/securetask/authkit/internal/client/verification"
)

// Verify drives the email verification flow: request a code (unless one is
// still valid), prompt for it, and submit. On success the refreshed profile
// shows emailVerified.
func (a *App) Verify(ctx context.Context) error {
	d := routeguard.Decide(a.sessions.Session(), routeguard.Requirement{RequireAuthenticated: true})
	if !d.Allowed() {
		printlnFn("You need to log in first")
		return nil
	}

	if sess := a.sessions.Session(); sess.Profile != nil && sess.Profile.EmailVerified {
		printlnFn("Your email is already verified")
		return nil
	}

	if a.verify.State() != verification.StateOtpEntry {
		if err := a.requestCode(ctx, a.verify, ""); err != nil {
			return err
		}
	} else if rem := a.verify.CooldownRemaining(); rem > 0 {
		printlnFn(fmt.Sprintf("A code was already sent; resend available in %ds", int(rem.Seconds())))
	}

	code, err := getSimpleText(a.reader, "Enter the 6-digit code from your email", os.Stdout)
	if err != nil {
		return err
	}

	if err := a.submitCode(ctx, a.verify, code, ""); err != nil {
		return err
	}

	printlnFn("Email verified!")
	return nil
}

// requestCode asks the flow for a fresh OTP, translating a running cooldown
// into a user-facing message instead of an error.
func (a *App) requestCode(ctx context.Context, f *verification.Flow, email string) error {
	err := f.RequestOtp(ctx, email)
	if err == nil {
		printlnFn("A verification code has been sent to your email")
		return nil
	}

	var cooldown *verification.CooldownError
	if errors.As(err, &cooldown) {
		printlnFn(fmt.Sprintf("Please wait: resend available in %ds", int(cooldown.Remaining.Seconds())))
		return nil
	}

	printlnFn("Could not send the code:", err)
	return err
}

// submitCode verifies the entered code, reporting remaining attempts on a
// wrong guess.
func (a *App) submitCode(ctx context.Context, f *verification.Flow, code, newPassword string) error {
	if err := f.Submit(ctx, code, newPassword); err != nil {
		if errors.Is(err, verification.ErrMalformedCode) {
			printlnFn("The code must be 6 digits")
			return err
		}
		if ch := f.Challenge(); ch != nil {
			printlnFn(fmt.Sprintf("Verification failed (%v); %d attempts remaining", err, ch.AttemptsRemaining))
		} else {
			printlnFn("Verification failed:", err)
		}
		return err
	}
	return nil
}
