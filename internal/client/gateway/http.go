package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/securetask/authkit/internal/client/models"
	"github.com/securetask/authkit/internal/common"
	"github.com/securetask/authkit/internal/logging"
)

const defaultTimeout = 10 * time.Second

// HTTPGateway talks JSON over HTTP to the identity backend and carries the
// bearer token in the Authorization header. It is safe for concurrent use.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	log     logging.Logger

	mu    sync.RWMutex
	token string
}

// NewHTTPGateway builds a gateway rooted at baseURL (e.g.
// "http://localhost:8080/api"). timeout bounds every call; zero selects the
// default of 10s.
func NewHTTPGateway(baseURL string, timeout time.Duration, log logging.Logger) *HTTPGateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
		log:     log,
	}
}

func (g *HTTPGateway) SetAuthToken(token string) {
	g.mu.Lock()
	g.token = token
	g.mu.Unlock()
}

func (g *HTTPGateway) authToken() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token
}

func (g *HTTPGateway) Close() error {
	g.client.CloseIdleConnections()
	return nil
}

// do performs one request/response cycle. Transport failures and non-2xx
// statuses come back as *Error; this is the only place they are produced.
func (g *HTTPGateway) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Kind: KindUnknown, Message: fmt.Sprintf("encode request: %v", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return &Error{Kind: KindUnknown, Message: fmt.Sprintf("build request: %v", err)}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if token := g.authToken(); token != "" {
		req.Header.Set(common.AuthHeaderName, common.BearerPrefix+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warn(ctx, "request failed", "method", method, "path", path, "error", err)
		return &Error{Kind: KindNetwork, Message: "server unreachable", Retryable: true}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Kind: KindNetwork, Message: "reading response failed", Retryable: true}
	}

	if resp.StatusCode >= 400 {
		return mapStatus(resp.StatusCode, data, resp.Header)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{Kind: KindUnknown, Message: "malformed server response"}
		}
	}
	return nil
}

// doIdempotent wraps do with a small fibonacci retry for calls that are
// safe to repeat. Only network-kind failures are retried; everything else
// surfaces immediately.
func (g *HTTPGateway) doIdempotent(ctx context.Context, method, path string, out any) error {
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := g.do(ctx, method, path, nil, out)
		if err != nil && KindOf(err) == KindNetwork {
			return retry.RetryableError(err)
		}
		return err
	})
}

// errorBody is the backend's error envelope. Older deployments used "error"
// instead of "message"; both are accepted.
type errorBody struct {
	Message string `json:"message"`
	ErrText string `json:"error"`
}

func mapStatus(status int, data []byte, hdr http.Header) *Error {
	var eb errorBody
	_ = json.Unmarshal(data, &eb)
	msg := eb.Message
	if msg == "" {
		msg = eb.ErrText
	}

	fallback := func(s string) string {
		if msg != "" {
			return msg
		}
		return s
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &Error{Kind: KindValidation, Message: fallback("invalid request")}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Kind: KindUnauthorized, Message: fallback("not authorized")}
	case http.StatusConflict:
		return &Error{Kind: KindConflict, Message: fallback("already exists")}
	case http.StatusTooManyRequests:
		return &Error{
			Kind:       KindRateLimited,
			Message:    fallback("too many requests"),
			Retryable:  true,
			RetryAfter: retryAfter(hdr),
		}
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &Error{Kind: KindNetwork, Message: fallback("server unavailable"), Retryable: true}
	default:
		return &Error{Kind: KindUnknown, Message: fallback(fmt.Sprintf("unexpected status %d", status))}
	}
}

func retryAfter(hdr http.Header) time.Duration {
	v := hdr.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

type verifyOtpRequest struct {
	Otp string `json:"otp"`
}

type sendResetOtpRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Otp         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

func (g *HTTPGateway) Register(ctx context.Context, name, email, password string) (models.UserProfile, error) {
	var profile models.UserProfile
	req := registerRequest{Name: name, Email: email, Password: password}
	if err := g.do(ctx, http.MethodPost, "/register", req, &profile); err != nil {
		return models.UserProfile{}, err
	}
	return profile, nil
}

func (g *HTTPGateway) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var resp loginResponse
	req := loginRequest{Email: email, Password: password}
	if err := g.do(ctx, http.MethodPost, "/login", req, &resp); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: resp.Token, Email: resp.Email}, nil
}

func (g *HTTPGateway) Logout(ctx context.Context) error {
	return g.do(ctx, http.MethodPost, "/logout", nil, nil)
}

func (g *HTTPGateway) GetProfile(ctx context.Context) (models.UserProfile, error) {
	var profile models.UserProfile
	if err := g.doIdempotent(ctx, http.MethodGet, "/profile", &profile); err != nil {
		return models.UserProfile{}, err
	}
	return profile, nil
}

func (g *HTTPGateway) IsAuthenticated(ctx context.Context) (bool, error) {
	var ok bool
	if err := g.doIdempotent(ctx, http.MethodGet, "/is-authenticated", &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (g *HTTPGateway) SendVerificationOtp(ctx context.Context) error {
	return g.do(ctx, http.MethodPost, "/send-otp", nil, nil)
}

func (g *HTTPGateway) VerifyOtp(ctx context.Context, code string) error {
	return g.do(ctx, http.MethodPost, "/verify-otp", verifyOtpRequest{Otp: code}, nil)
}

func (g *HTTPGateway) SendResetOtp(ctx context.Context, email string) error {
	return g.do(ctx, http.MethodPost, "/send-reset-otp", sendResetOtpRequest{Email: email}, nil)
}

func (g *HTTPGateway) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	req := resetPasswordRequest{Email: email, Otp: code, NewPassword: newPassword}
	return g.do(ctx, http.MethodPost, "/reset-password", req, nil)
}
