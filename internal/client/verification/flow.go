// Package verification drives the OTP-challenge flows: post-registration
// email verification and forgot-password reset. Both are the same state
// machine parameterized by purpose, which is what replaces the per-page
// countdown/resend logic the UI would otherwise duplicate.
package verification

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/securetask/authkit/internal/client/gateway"
	"github.com/securetask/authkit/internal/client/session"
	"github.com/securetask/authkit/internal/logging"
)

// Purpose selects which backend operations a flow drives.
type Purpose string

const (
	// PurposeRegistrationVerify proves the registered email; requires an
	// authenticated session and flips the profile's emailVerified on
	// success.
	PurposeRegistrationVerify Purpose = "registration_verify"
	// PurposePasswordReset proves control of an email to set a new
	// password; runs unauthenticated and never touches the session.
	PurposePasswordReset Purpose = "password_reset"
)

// State is the flow position for the current challenge instance.
type State string

const (
	StateIdle         State = "idle"
	StateOtpRequested State = "otp_requested"
	StateOtpEntry     State = "otp_entry"
	StateVerified     State = "verified"
	StateAbandoned    State = "abandoned"
)

const (
	// CooldownDuration is the minimum interval between OTP sends.
	CooldownDuration = 60 * time.Second
	// OtpLength is the number of digits in a code.
	OtpLength = 6
	// DefaultAttempts is the advisory verify allowance per challenge.
	DefaultAttempts = 5

	tickInterval = time.Second
)

var (
	// ErrNoChallenge is returned by Submit when there is nothing to verify.
	ErrNoChallenge = errors.New("no active otp challenge")
	// ErrMalformedCode rejects codes that are not exactly OtpLength digits,
	// before any network call.
	ErrMalformedCode = fmt.Errorf("otp code must be %d digits", OtpLength)
)

var otpPattern = regexp.MustCompile(`^[0-9]{6}$`)

// CooldownError is the local, synchronous rejection of a resend while the
// cooldown is still running. No network call is made. It is validation-natured
// and carries the remaining wait so the UI can render it.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("resend available in %ds", int(e.Remaining.Seconds()+0.5))
}

// Challenge is the client-side view of one server-issued OTP attempt.
// Instances handed out by the flow are copies; mutating them has no effect.
type Challenge struct {
	Purpose           Purpose
	TargetEmail       string
	IssuedAt          time.Time
	CooldownExpiresAt time.Time
	AttemptsRemaining int
}

// Flow is one OTP flow instance. A fresh RequestOtp after a terminal state
// starts a new challenge, discarding the previous cooldown and attempt
// history. Safe for concurrent use.
type Flow struct {
	purpose  Purpose
	gw       gateway.Gateway
	sessions *session.Store
	log      logging.Logger

	mu        sync.Mutex
	state     State
	challenge *Challenge
	onTick    func(remaining time.Duration)
	stopTick  chan struct{}

	// test seams
	now  func() time.Time
	tick time.Duration
}

// NewFlow builds an idle flow. sessions may be nil for PurposePasswordReset,
// which never touches the session store.
func NewFlow(purpose Purpose, gw gateway.Gateway, sessions *session.Store, log logging.Logger) *Flow {
	return &Flow{
		purpose:  purpose,
		gw:       gw,
		sessions: sessions,
		log:      log,
		state:    StateIdle,
		now:      time.Now,
		tick:     tickInterval,
	}
}

// OnCooldownTick registers a callback invoked roughly once per second with
// the remaining cooldown while one is running. Used by the UI for the
// "Resend in Ns" countdown.
func (f *Flow) OnCooldownTick(fn func(remaining time.Duration)) {
	f.mu.Lock()
	f.onTick = fn
	f.mu.Unlock()
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Challenge returns a copy of the active challenge, or nil.
func (f *Flow) Challenge() *Challenge {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.challenge == nil {
		return nil
	}
	cp := *f.challenge
	return &cp
}

// CooldownRemaining derives the wait before the next send is allowed.
func (f *Flow) CooldownRemaining() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cooldownRemainingLocked()
}

func (f *Flow) cooldownRemainingLocked() time.Duration {
	if f.challenge == nil {
		return 0
	}
	rem := f.challenge.CooldownExpiresAt.Sub(f.now())
	if rem < 0 {
		return 0
	}
	return rem
}

// RequestOtp asks the backend to mail a code and opens a fresh challenge.
//
// While a previous challenge's cooldown is running the call is rejected
// locally with *CooldownError and no network round-trip happens. For
// PurposeRegistrationVerify the target email is taken from the session and
// the email argument is ignored.
func (f *Flow) RequestOtp(ctx context.Context, email string) error {
	f.mu.Lock()
	if rem := f.cooldownRemainingLocked(); rem > 0 {
		f.mu.Unlock()
		return &CooldownError{Remaining: rem}
	}
	prevState := f.state
	f.state = StateOtpRequested
	f.mu.Unlock()

	var err error
	switch f.purpose {
	case PurposeRegistrationVerify:
		sess := f.sessions.Session()
		if sess.Profile == nil {
			err = session.ErrNotAuthenticated
		} else {
			email = sess.Profile.Email
			err = f.gw.SendVerificationOtp(ctx)
		}
	case PurposePasswordReset:
		err = f.gw.SendResetOtp(ctx, email)
	default:
		err = fmt.Errorf("unknown otp purpose %q", f.purpose)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state = prevState
		return err
	}

	now := f.now()
	f.stopTickerLocked()
	f.challenge = &Challenge{
		Purpose:           f.purpose,
		TargetEmail:       email,
		IssuedAt:          now,
		CooldownExpiresAt: now.Add(CooldownDuration),
		AttemptsRemaining: DefaultAttempts,
	}
	f.state = StateOtpEntry
	f.startTickerLocked()
	f.log.Info(ctx, "otp requested", "purpose", string(f.purpose), "email", email)
	return nil
}

// Submit verifies the entered code against the active challenge. For
// PurposePasswordReset, newPassword carries the replacement password; it is
// ignored for PurposeRegistrationVerify.
//
// A verify failure decrements the attempt allowance but never abandons the
// flow: the user may retry until a fresh challenge replaces this one.
func (f *Flow) Submit(ctx context.Context, code, newPassword string) error {
	f.mu.Lock()
	if f.state != StateOtpEntry || f.challenge == nil {
		f.mu.Unlock()
		return ErrNoChallenge
	}
	if !otpPattern.MatchString(code) {
		f.mu.Unlock()
		return ErrMalformedCode
	}
	email := f.challenge.TargetEmail
	f.mu.Unlock()

	var err error
	switch f.purpose {
	case PurposeRegistrationVerify:
		err = f.gw.VerifyOtp(ctx, code)
	case PurposePasswordReset:
		err = f.gw.ResetPassword(ctx, email, code, newPassword)
	}

	if err != nil {
		f.mu.Lock()
		if f.challenge != nil && f.challenge.AttemptsRemaining > 0 {
			f.challenge.AttemptsRemaining--
		}
		f.mu.Unlock()
		return err
	}

	f.mu.Lock()
	f.state = StateVerified
	f.challenge = nil
	f.stopTickerLocked()
	f.mu.Unlock()

	if f.purpose == PurposeRegistrationVerify {
		// The backend flipped emailVerified; pull the fresh profile so
		// the session reflects it. Verification itself already
		// succeeded, so a refresh hiccup is not surfaced as a failure.
		if _, err := f.sessions.RefreshProfile(ctx); err != nil {
			f.log.Warn(ctx, "profile refresh after verification failed", "error", err)
		}
	}
	f.log.Info(ctx, "otp verified", "purpose", string(f.purpose))
	return nil
}

// Abandon discards the active challenge and stops the countdown. Terminal for
// this challenge instance; a later RequestOtp starts a fresh one.
func (f *Flow) Abandon() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateAbandoned
	f.challenge = nil
	f.stopTickerLocked()
}

// Close releases the countdown ticker without changing flow state. For
// disposal on application shutdown.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopTickerLocked()
}

// startTickerLocked runs the per-second countdown for the current challenge.
// The goroutine exits by itself once the cooldown elapses, or earlier when
// stopped. Callers hold f.mu.
func (f *Flow) startTickerLocked() {
	stop := make(chan struct{})
	f.stopTick = stop
	expires := f.challenge.CooldownExpiresAt

	go func() {
		t := time.NewTicker(f.tick)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				rem := expires.Sub(f.now())
				if rem < 0 {
					rem = 0
				}
				f.mu.Lock()
				fn := f.onTick
				f.mu.Unlock()
				if fn != nil {
					fn(rem)
				}
				if rem == 0 {
					return
				}
			}
		}
	}()
}

func (f *Flow) stopTickerLocked() {
	if f.stopTick != nil {
		close(f.stopTick)
		f.stopTick = nil
	}
}
