package cli

import (
	"bytes"
	"context"
	"os"

	"github.com/securetask/authkit/internal/client/verification"
	"github.com/securetask/authkit/internal/common"
)

// Forgot drives the password reset flow for a logged-out user: send a code to
// the given email, prompt for the code and a new password, and submit both.
func (a *App) Forgot(ctx context.Context) error {
	var email string

	if a.reset.State() != verification.StateOtpEntry {
		var err error
		email, err = getSimpleText(a.reader, "Enter your account email", os.Stdout)
		if err != nil {
			return err
		}
		if err := a.requestCode(ctx, a.reset, email); err != nil {
			return err
		}
	}

	code, err := getSimpleText(a.reader, "Enter the 6-digit code from your email", os.Stdout)
	if err != nil {
		return err
	}

	newPassword, err := getPassword(os.Stdout, "Enter new password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(newPassword)

	confirm, err := getPassword(os.Stdout, "Repeat new password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(newPassword, confirm) {
		printlnFn("Passwords do not match")
		return nil
	}

	if err := a.submitCode(ctx, a.reset, code, string(newPassword)); err != nil {
		return err
	}

	printlnFn("Password updated; you can log in with the new password now")
	return nil
}
