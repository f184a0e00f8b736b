package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/securetask/authkit/internal/client/gateway"
	"github.com/securetask/authkit/internal/client/models"
	"github.com/securetask/authkit/internal/client/repositories/sessionrecord"
	"github.com/securetask/authkit/internal/logging"
)

// ErrNotAuthenticated is returned by operations that require an established
// session when there is none.
var ErrNotAuthenticated = errors.New("not authenticated")

// timeNow is a test seam for the token expiry check.
var timeNow = time.Now

const logoutTimeout = 5 * time.Second

// Store owns the session: the token, the profile, and the lifecycle status.
// It is the only writer of the persisted session record.
//
// Conflicting mutations are serialized with a generation counter: every
// session-mutating operation bumps the generation when it starts, and an
// asynchronous result is applied only if the generation it was issued under is
// still current. A logout racing a login therefore wins — the login's late
// profile fetch is discarded instead of resurrecting a stale session.
type Store struct {
	gw      gateway.Gateway
	records sessionrecord.Repository
	log     logging.Logger

	mu      sync.Mutex
	session models.Session
	gen     uint64

	group singleflight.Group
}

// NewStore builds a Store in the Unknown state. Call Restore once at startup
// to settle it.
func NewStore(gw gateway.Gateway, records sessionrecord.Repository, log logging.Logger) *Store {
	return &Store{
		gw:      gw,
		records: records,
		log:     log,
		session: models.Session{Status: models.StatusUnknown},
	}
}

// Session returns a copy of the current session. The profile is copied too,
// so callers can never mutate store-owned state.
func (s *Store) Session() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session
	if sess.Profile != nil {
		p := *sess.Profile
		sess.Profile = &p
	}
	return sess
}

// begin marks the start of a session-mutating operation and returns the new
// generation. transitional, when non-empty, becomes the visible status while
// the operation is in flight.
func (s *Store) begin(transitional models.Status) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if transitional != "" {
		s.session.Status = transitional
	}
	return s.gen
}

// commitIfCurrent installs next as the session state, unless a newer
// generation has superseded gen, in which case the result is discarded.
func (s *Store) commitIfCurrent(gen uint64, next models.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.session = next
	return true
}

// setTokenIfCurrent installs token on the gateway, unless gen has been
// superseded. Routing every token change through the store mutex gives all
// token updates a total order consistent with the generation counter.
func (s *Store) setTokenIfCurrent(gen uint64, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.gw.SetAuthToken(token)
	return true
}

// fetchProfile issues at most one profile request per generation; concurrent
// callers under the same generation await the shared in-flight result.
func (s *Store) fetchProfile(ctx context.Context, gen uint64) (models.UserProfile, error) {
	v, err, _ := s.group.Do(fmt.Sprintf("profile-%d", gen), func() (any, error) {
		return s.gw.GetProfile(ctx)
	})
	if err != nil {
		return models.UserProfile{}, err
	}
	return v.(models.UserProfile), nil
}

// Restore settles the initial Unknown state from the persisted record.
//
// It is idempotent under concurrent invocation: overlapping calls collapse
// into a single pass and all callers observe the same resulting session. The
// status stays Unknown until the restore resolves, so route decisions remain
// Pending rather than flashing a redirect.
func (s *Store) Restore(ctx context.Context) (models.Session, error) {
	_, err, _ := s.group.Do("restore", func() (any, error) {
		return nil, s.restore(ctx)
	})
	return s.Session(), err
}

func (s *Store) restore(ctx context.Context) error {
	gen := s.begin("")

	rec, err := s.records.Load(ctx)
	if err != nil {
		// An unreadable local store is treated as "no session": the user
		// can always log in again.
		s.log.Warn(ctx, "failed to load session record", "error", err)
		s.commitIfCurrent(gen, anonymous())
		return nil
	}
	if rec == nil {
		s.commitIfCurrent(gen, anonymous())
		return nil
	}

	if tokenExpired(rec.Token) {
		s.log.Info(ctx, "stored token expired, discarding session record")
		s.clearIfCurrent(ctx, gen)
		return nil
	}

	if !s.setTokenIfCurrent(gen, rec.Token) {
		return nil
	}

	profile, err := s.fetchProfile(ctx, gen)
	if err != nil {
		if gateway.IsUnauthorized(err) {
			s.setTokenIfCurrent(gen, "")
			s.clearIfCurrent(ctx, gen)
			return err
		}
		// Transient failure: fall back to Anonymous in memory but keep
		// the record so a later restart can try again.
		s.setTokenIfCurrent(gen, "")
		s.commitIfCurrent(gen, anonymous())
		return err
	}

	s.commitIfCurrent(gen, models.Session{
		Token:   rec.Token,
		Profile: &profile,
		Status:  models.StatusAuthenticated,
	})
	return nil
}

// Login authenticates and establishes the session. The record is persisted
// only after the profile fetch succeeds; a token without a profile is never
// committed anywhere.
func (s *Store) Login(ctx context.Context, email, password string) (models.Session, error) {
	gen := s.begin(models.StatusAuthenticating)

	res, err := s.gw.Login(ctx, email, password)
	if err != nil {
		s.commitIfCurrent(gen, anonymous())
		return s.Session(), err
	}

	if !s.setTokenIfCurrent(gen, res.Token) {
		// Superseded (e.g. by a logout) before the token was installed.
		return s.Session(), nil
	}

	profile, err := s.fetchProfile(ctx, gen)
	if err != nil {
		s.setTokenIfCurrent(gen, "")
		if gateway.IsUnauthorized(err) {
			s.clearIfCurrent(ctx, gen)
		} else {
			s.commitIfCurrent(gen, anonymous())
		}
		return s.Session(), err
	}

	s.mu.Lock()
	if gen != s.gen {
		// Superseded while the fetch was in flight; the newer operation
		// owns the gateway token now.
		s.mu.Unlock()
		return s.Session(), nil
	}
	rec := sessionrecord.Record{Token: res.Token, Profile: profile}
	if err := s.records.Save(ctx, rec); err != nil {
		s.session = anonymous()
		s.gw.SetAuthToken("")
		s.mu.Unlock()
		return s.Session(), fmt.Errorf("persist session: %w", err)
	}
	s.session = models.Session{
		Token:   res.Token,
		Profile: &profile,
		Status:  models.StatusAuthenticated,
	}
	s.mu.Unlock()

	s.log.Info(ctx, "session established", "email", profile.Email)
	return s.Session(), nil
}

// Register creates the account but does not establish a session; the caller
// routes to login / verification afterwards.
func (s *Store) Register(ctx context.Context, name, email, password string) (models.UserProfile, error) {
	return s.gw.Register(ctx, name, email, password)
}

// Logout clears local state immediately and unconditionally, then notifies
// the backend without waiting for — or depending on — its answer.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	s.session = anonymous()
	clearErr := s.records.Clear(ctx)
	s.gw.SetAuthToken("")
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
		defer cancel()
		if err := s.gw.Logout(ctx); err != nil {
			// Best effort: the user is logged out locally regardless.
			s.log.Warn(ctx, "server-side logout failed", "error", err)
		}
	}()

	if clearErr != nil {
		return fmt.Errorf("clear session record: %w", clearErr)
	}
	return nil
}

// RefreshProfile re-fetches the profile for an established session, e.g.
// after OTP verification flipped emailVerified on the backend.
func (s *Store) RefreshProfile(ctx context.Context) (models.UserProfile, error) {
	s.mu.Lock()
	if s.session.Status != models.StatusAuthenticated {
		s.mu.Unlock()
		return models.UserProfile{}, ErrNotAuthenticated
	}
	gen := s.gen
	token := s.session.Token
	s.mu.Unlock()

	profile, err := s.fetchProfile(ctx, gen)
	if err != nil {
		if gateway.IsUnauthorized(err) {
			s.setTokenIfCurrent(gen, "")
			s.clearIfCurrent(ctx, gen)
		}
		return models.UserProfile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return profile, nil
	}
	s.session.Profile = &profile
	if err := s.records.Save(ctx, sessionrecord.Record{Token: token, Profile: profile}); err != nil {
		s.log.Warn(ctx, "failed to persist refreshed profile", "error", err)
	}
	return profile, nil
}

// clearIfCurrent wipes both the in-memory session and the persisted record,
// unless gen has been superseded.
func (s *Store) clearIfCurrent(ctx context.Context, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.session = anonymous()
	if err := s.records.Clear(ctx); err != nil {
		s.log.Warn(ctx, "failed to clear session record", "error", err)
	}
}

func anonymous() models.Session {
	return models.Session{Status: models.StatusAnonymous}
}

// tokenExpired inspects the stored JWT's exp claim without verifying the
// signature (verification is the backend's job). Unparseable tokens count as
// expired; tokens without an exp claim are assumed live and left to the
// backend to reject.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(timeNow())
}
