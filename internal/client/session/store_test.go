package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/securetask/authkit/internal/client/gateway"
	"github.com/securetask/authkit/internal/client/models"
	"github.com/securetask/authkit/internal/client/repositories/sessionrecord"
	"github.com/securetask/authkit/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// ---- fakes ----

// memRecords is an in-memory sessionrecord.Repository.
type memRecords struct {
	mu  sync.Mutex
	rec *sessionrecord.Record
}

func (m *memRecords) Load(_ context.Context) (*sessionrecord.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, nil
	}
	cp := *m.rec
	return &cp, nil
}

func (m *memRecords) Save(_ context.Context, rec sessionrecord.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = &rec
	return nil
}

func (m *memRecords) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
	return nil
}

func (m *memRecords) get() *sessionrecord.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil
	}
	cp := *m.rec
	return &cp
}

// fakeGateway implements gateway.Gateway with programmable results.
type fakeGateway struct {
	mu    sync.Mutex
	token string

	loginRes gateway.LoginResult
	loginErr error

	profile       models.UserProfile
	profileErr    error
	profileCalls  int
	profileEnter  chan struct{} // signalled when GetProfile is entered, if set
	profileBlock  chan struct{} // GetProfile waits on this, if set
	logoutCalled  chan struct{}
	logoutErr     error
	registerProf  models.UserProfile
	registerErr   error
	isAuthedRes   bool
	isAuthedErr   error
	verifyErr     error
	sendOtpErr    error
	sendResetErr  error
	resetPassErr  error
	verifyOtpSeen string
}

func (f *fakeGateway) SetAuthToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func (f *fakeGateway) currentToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeGateway) Close() error { return nil }

func (f *fakeGateway) Register(_ context.Context, _, _, _ string) (models.UserProfile, error) {
	return f.registerProf, f.registerErr
}

func (f *fakeGateway) Login(_ context.Context, _, _ string) (gateway.LoginResult, error) {
	return f.loginRes, f.loginErr
}

func (f *fakeGateway) Logout(_ context.Context) error {
	if f.logoutCalled != nil {
		close(f.logoutCalled)
	}
	return f.logoutErr
}

func (f *fakeGateway) GetProfile(_ context.Context) (models.UserProfile, error) {
	f.mu.Lock()
	f.profileCalls++
	enter, block := f.profileEnter, f.profileBlock
	f.mu.Unlock()
	if enter != nil {
		enter <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return f.profile, f.profileErr
}

func (f *fakeGateway) profileCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profileCalls
}

func (f *fakeGateway) IsAuthenticated(_ context.Context) (bool, error) {
	return f.isAuthedRes, f.isAuthedErr
}

func (f *fakeGateway) SendVerificationOtp(_ context.Context) error { return f.sendOtpErr }

func (f *fakeGateway) VerifyOtp(_ context.Context, code string) error {
	f.mu.Lock()
	f.verifyOtpSeen = code
	f.mu.Unlock()
	return f.verifyErr
}

func (f *fakeGateway) SendResetOtp(_ context.Context, _ string) error { return f.sendResetErr }

func (f *fakeGateway) ResetPassword(_ context.Context, _, _, _ string) error { return f.resetPassErr }

func newStore(gw gateway.Gateway, rec sessionrecord.Repository) *Store {
	return NewStore(gw, rec, testLogger())
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

// ---- tests ----

func TestNewStore_StartsUnknown(t *testing.T) {
	s := newStore(&fakeGateway{}, &memRecords{})
	require.Equal(t, models.StatusUnknown, s.Session().Status)
}

func TestRestore_NoRecord_Anonymous(t *testing.T) {
	gw := &fakeGateway{}
	s := newStore(gw, &memRecords{})

	sess, err := s.Restore(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.StatusAnonymous, sess.Status)
	require.Zero(t, gw.profileCallCount())
}

func TestRestore_ValidRecord_Authenticated(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	gw := &fakeGateway{profile: models.UserProfile{UserID: "u1", Email: "a@b.com"}}
	rec := &memRecords{rec: &sessionrecord.Record{
		Token:   token,
		Profile: models.UserProfile{UserID: "u1", Email: "a@b.com"},
	}}
	s := newStore(gw, rec)

	sess, err := s.Restore(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.StatusAuthenticated, sess.Status)
	require.Equal(t, token, sess.Token)
	require.Equal(t, "u1", sess.Profile.UserID)
	require.Equal(t, token, gw.currentToken())
}

func TestRestore_ExpiredToken_ClearedWithoutNetworkCall(t *testing.T) {
	token := signedToken(t, time.Now().Add(-time.Hour))
	gw := &fakeGateway{}
	rec := &memRecords{rec: &sessionrecord.Record{Token: token}}
	s := newStore(gw, rec)

	sess, err := s.Restore(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.StatusAnonymous, sess.Status)
	require.Zero(t, gw.profileCallCount())
	require.Nil(t, rec.get())
}

func TestRestore_Unauthorized_ClearsRecord(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	gw := &fakeGateway{profileErr: &gateway.Error{Kind: gateway.KindUnauthorized, Message: "not authorized"}}
	rec := &memRecords{rec: &sessionrecord.Record{Token: token, Profile: models.UserProfile{UserID: "u1"}}}
	s := newStore(gw, rec)

	sess, err := s.Restore(context.Background())
	require.True(t, gateway.IsUnauthorized(err))
	require.Equal(t, models.StatusAnonymous, sess.Status)
	require.Nil(t, rec.get())
	require.Empty(t, gw.currentToken())
}

func TestRestore_NetworkFailure_KeepsRecord(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	gw := &fakeGateway{profileErr: &gateway.Error{Kind: gateway.KindNetwork, Retryable: true}}
	rec := &memRecords{rec: &sessionrecord.Record{Token: token, Profile: models.UserProfile{UserID: "u1"}}}
	s := newStore(gw, rec)

	sess, err := s.Restore(context.Background())
	require.Error(t, err)
	require.Equal(t, models.StatusAnonymous, sess.Status)
	require.NotNil(t, rec.get())
}

func TestRestore_Concurrent_SingleProfileFetch(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	gw := &fakeGateway{
		profile:      models.UserProfile{UserID: "u1"},
		profileBlock: make(chan struct{}),
	}
	rec := &memRecords{rec: &sessionrecord.Record{Token: token, Profile: models.UserProfile{UserID: "u1"}}}
	s := newStore(gw, rec)

	const callers = 8
	var wg sync.WaitGroup
	statuses := make([]models.Status, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := s.Restore(context.Background())
			statuses[i], errs[i] = sess.Status, err
		}(i)
	}

	// Let the goroutines pile up on the shared in-flight restore.
	time.Sleep(50 * time.Millisecond)
	close(gw.profileBlock)
	wg.Wait()

	require.Equal(t, 1, gw.profileCallCount())
	for i := range statuses {
		require.NoError(t, errs[i])
		require.Equal(t, models.StatusAuthenticated, statuses[i])
	}
}

func TestLogin_Success_PersistsTokenAndProfileTogether(t *testing.T) {
	gw := &fakeGateway{
		loginRes: gateway.LoginResult{Token: "t1", Email: "a@b.com"},
		profile:  models.UserProfile{UserID: "u1", Email: "a@b.com", EmailVerified: false},
	}
	rec := &memRecords{}
	s := newStore(gw, rec)

	sess, err := s.Login(context.Background(), "a@b.com", "Secret123")
	require.NoError(t, err)
	require.Equal(t, models.StatusAuthenticated, sess.Status)
	require.Equal(t, "t1", sess.Token)

	stored := rec.get()
	require.NotNil(t, stored)
	require.Equal(t, "t1", stored.Token)
	require.Equal(t, "u1", stored.Profile.UserID)
}

func TestLogin_BadCredentials_StaysAnonymous(t *testing.T) {
	gw := &fakeGateway{loginErr: &gateway.Error{Kind: gateway.KindUnauthorized, Message: "bad credentials"}}
	rec := &memRecords{}
	s := newStore(gw, rec)

	sess, err := s.Login(context.Background(), "a@b.com", "wrong")
	require.True(t, gateway.IsUnauthorized(err))
	require.Equal(t, models.StatusAnonymous, sess.Status)
	require.Nil(t, rec.get())
}

func TestLogin_ProfileFetchFails_NothingPersisted(t *testing.T) {
	gw := &fakeGateway{
		loginRes:   gateway.LoginResult{Token: "t1"},
		profileErr: &gateway.Error{Kind: gateway.KindNetwork, Retryable: true},
	}
	rec := &memRecords{}
	s := newStore(gw, rec)

	sess, err := s.Login(context.Background(), "a@b.com", "Secret123")
	require.Error(t, err)
	require.Equal(t, models.StatusAnonymous, sess.Status)
	require.Nil(t, rec.get())
	require.Empty(t, gw.currentToken())
}

func TestLogout_DuringLogin_DiscardsStaleResult(t *testing.T) {
	gw := &fakeGateway{
		loginRes:     gateway.LoginResult{Token: "t1"},
		profile:      models.UserProfile{UserID: "u1"},
		profileEnter: make(chan struct{}, 1),
		profileBlock: make(chan struct{}),
	}
	rec := &memRecords{}
	s := newStore(gw, rec)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Login(context.Background(), "a@b.com", "Secret123")
	}()

	<-gw.profileEnter
	require.NoError(t, s.Logout(context.Background()))

	close(gw.profileBlock)
	<-done

	require.Equal(t, models.StatusAnonymous, s.Session().Status)
	require.Nil(t, rec.get())
	require.Empty(t, gw.currentToken())
}

func TestLogout_ServerFailure_StillAnonymous(t *testing.T) {
	called := make(chan struct{})
	gw := &fakeGateway{
		loginRes:     gateway.LoginResult{Token: "t1"},
		profile:      models.UserProfile{UserID: "u1"},
		logoutCalled: called,
		logoutErr:    &gateway.Error{Kind: gateway.KindNetwork, Retryable: true},
	}
	rec := &memRecords{}
	s := newStore(gw, rec)

	_, err := s.Login(context.Background(), "a@b.com", "Secret123")
	require.NoError(t, err)

	require.NoError(t, s.Logout(context.Background()))
	require.Equal(t, models.StatusAnonymous, s.Session().Status)
	require.Nil(t, rec.get())

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("server-side logout was never fired")
	}
}

func TestRefreshProfile_FlipsEmailVerified(t *testing.T) {
	gw := &fakeGateway{
		loginRes: gateway.LoginResult{Token: "t1"},
		profile:  models.UserProfile{UserID: "u1", EmailVerified: false},
	}
	rec := &memRecords{}
	s := newStore(gw, rec)

	_, err := s.Login(context.Background(), "a@b.com", "Secret123")
	require.NoError(t, err)

	gw.mu.Lock()
	gw.profile.EmailVerified = true
	gw.mu.Unlock()

	profile, err := s.RefreshProfile(context.Background())
	require.NoError(t, err)
	require.True(t, profile.EmailVerified)
	require.True(t, s.Session().Profile.EmailVerified)
	require.True(t, rec.get().Profile.EmailVerified)
}

func TestRefreshProfile_NotAuthenticated(t *testing.T) {
	s := newStore(&fakeGateway{}, &memRecords{})
	_, err := s.RefreshProfile(context.Background())
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestRefreshProfile_Unauthorized_ForcesAnonymous(t *testing.T) {
	gw := &fakeGateway{
		loginRes: gateway.LoginResult{Token: "t1"},
		profile:  models.UserProfile{UserID: "u1"},
	}
	rec := &memRecords{}
	s := newStore(gw, rec)

	_, err := s.Login(context.Background(), "a@b.com", "Secret123")
	require.NoError(t, err)

	gw.mu.Lock()
	gw.profileErr = &gateway.Error{Kind: gateway.KindUnauthorized}
	gw.mu.Unlock()

	_, err = s.RefreshProfile(context.Background())
	require.True(t, gateway.IsUnauthorized(err))
	require.Equal(t, models.StatusAnonymous, s.Session().Status)
	require.Nil(t, rec.get())
}

func TestRegister_DoesNotEstablishSession(t *testing.T) {
	gw := &fakeGateway{registerProf: models.UserProfile{UserID: "u1", Email: "a@b.com"}}
	rec := &memRecords{}
	s := newStore(gw, rec)

	_, err := s.Restore(context.Background())
	require.NoError(t, err)

	profile, err := s.Register(context.Background(), "Ann", "a@b.com", "Secret123")
	require.NoError(t, err)
	require.Equal(t, "u1", profile.UserID)
	require.Equal(t, models.StatusAnonymous, s.Session().Status)
	require.Nil(t, rec.get())
}

func TestSession_ReturnsProfileCopy(t *testing.T) {
	gw := &fakeGateway{
		loginRes: gateway.LoginResult{Token: "t1"},
		profile:  models.UserProfile{UserID: "u1"},
	}
	s := newStore(gw, &memRecords{})

	_, err := s.Login(context.Background(), "a@b.com", "Secret123")
	require.NoError(t, err)

	sess := s.Session()
	sess.Profile.UserID = "mutated"
	require.Equal(t, "u1", s.Session().Profile.UserID)
}
