package cli

import (
	"bytes"
	"context"
	"os"

	"github.com/securetask/authkit/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for name, email and password (entered twice) and creates
// a new account. It does not log the user in; the account starts unverified
// and the user proceeds to login and then the verify command.
//
// The password byte slices are securely wiped before returning. Any I/O or
// gateway error is returned unchanged.
func (a *App) Register(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter name", os.Stdout)
	if err != nil {
		return err
	}

	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout, "Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	confirm, err := getPassword(os.Stdout, "Repeat password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(password, confirm) {
		printlnFn("Passwords do not match")
		return nil
	}

	profile, err := a.sessions.Register(ctx, name, email, string(password))
	if err != nil {
		printlnFn("Registration failed:", err)
		return err
	}

	printlnFn("Account created for " + profile.Email + ". Log in and run 'verify' to confirm your email.")
	return nil
}

// Login prompts for credentials and establishes the session. On success the
// session (token + profile) is persisted so the next start restores it
// without logging in again.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout, "Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	sess, err := a.sessions.Login(ctx, email, string(password))
	if err != nil {
		printlnFn("Login failed:", err)
		return err
	}

	printlnFn("Logged in as " + sess.Profile.Email)
	if !sess.Profile.EmailVerified {
		printlnFn("Your email is not verified yet; run 'verify' to confirm it.")
	}
	return nil
}

// Logout drops the session locally and notifies the backend in the
// background.
func (a *App) Logout(ctx context.Context) error {
	if err := a.sessions.Logout(ctx); err != nil {
		printlnFn("Logout failed:", err)
		return err
	}
	a.verify.Abandon()
	printlnFn("Logged out")
	return nil
}
