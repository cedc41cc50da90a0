package portal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/HerbHall/campusnet/internal/cipher"
	"go.uber.org/zap"
)

// Fixed protocol values from the gateway's login page.
const (
	OperationPasswordLogin = "pwdLogin"
	DisclaimerReferer      = "http://1.1.1.3/ac_portal/disclaimer/pc.html"
	RequestTimeout         = 10 * time.Second

	// bodyExcerptLimit bounds the raw body quoted in an invalid-response reason.
	bodyExcerptLimit = 200
	maxBodySize      = 1 << 20
)

// Clock returns the current time.
type Clock func() time.Time

// Authenticator performs one login exchange with the gateway.
type Authenticator struct {
	client    *http.Client
	userAgent string
	now       Clock
	logger    *zap.Logger
}

// NewAuthenticator creates an authenticator that identifies itself with
// userAgent. Requests time out after RequestTimeout.
func NewAuthenticator(userAgent string, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		client: &http.Client{
			Timeout: RequestTimeout,
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: true,
			},
		},
		userAgent: userAgent,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the time source used for auth tags.
func (a *Authenticator) WithClock(now Clock) *Authenticator {
	a.now = now
	return a
}

// NewAttempt derives the auth tag and password ciphertext for one request.
// The gateway's login script trims the password before encoding it.
func (a *Authenticator) NewAttempt(password string) AuthAttempt {
	tag := strconv.FormatInt(a.now().UnixMilli(), 10)
	return AuthAttempt{
		AuthTag:    tag,
		Ciphertext: cipher.Encrypt(strings.TrimSpace(password), tag),
	}
}

// Payload builds the form body for a password login.
func Payload(username string, attempt AuthAttempt) url.Values {
	return url.Values{
		"opr":         {OperationPasswordLogin},
		"userName":    {username},
		"pwd":         {attempt.Ciphertext},
		"auth_tag":    {attempt.AuthTag},
		"rememberPwd": {"0"},
	}
}

// Login posts the encoded credentials and interprets the gateway's reply.
// Login never returns an error: network failures and gateway rejections
// are reported through Result.
func (a *Authenticator) Login(ctx context.Context, creds Credentials) Result {
	attempt := a.NewAttempt(creds.Password)
	body := Payload(creds.Username, attempt).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.LoginURL, strings.NewReader(body))
	if err != nil {
		return a.fail(creds, failure(FailureTransport, "invalid login URL: %v", err))
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", DisclaimerReferer)

	a.logger.Info("attempting login", creds.Fields()...)

	resp, err := a.client.Do(req)
	if err != nil {
		return a.fail(creds, transportFailure(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return a.fail(creds, transportFailure(err))
	}

	if resp.StatusCode != http.StatusOK {
		r := failure(FailureStatus, "HTTP status %d", resp.StatusCode)
		r.StatusCode = resp.StatusCode
		return a.fail(creds, r)
	}

	r := parseResponse(raw)
	r.StatusCode = resp.StatusCode
	if !r.Success {
		return a.fail(creds, r)
	}

	a.logger.Info("login successful", creds.Fields()...)
	return r
}

func (a *Authenticator) fail(creds Credentials, r Result) Result {
	a.logger.Error("login failed",
		append(creds.Fields(),
			zap.String("kind", string(r.Kind)),
			zap.String("reason", r.Reason),
		)...,
	)
	return r
}

// loginResponse is the gateway's JSON reply. success is decoded loosely
// because gateway firmware versions disagree on its type.
type loginResponse struct {
	Success json.RawMessage `json:"success"`
	Msg     *string         `json:"msg"`
}

func parseResponse(raw []byte) Result {
	var resp loginResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return failure(FailureInvalidResponse, "invalid response: %s", excerpt(raw))
	}
	if truthy(resp.Success) {
		return Result{Success: true}
	}
	msg := "unknown error"
	if resp.Msg != nil && *resp.Msg != "" {
		msg = *resp.Msg
	}
	return Result{Kind: FailureRejected, Reason: msg}
}

// truthy reports whether a JSON value counts as true: booleans as-is,
// non-zero numbers, and non-empty strings other than "false" and "0".
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s != "" && s != "false" && s != "0"
	default:
		return false
	}
}

func excerpt(raw []byte) string {
	s := string(raw)
	if len(s) > bodyExcerptLimit {
		s = s[:bodyExcerptLimit]
	}
	return strings.TrimSpace(s)
}

func transportFailure(err error) Result {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return failure(FailureTransport, "login request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return failure(FailureTransport, "login request cancelled")
	}
	return failure(FailureTransport, "connection error: %v", err)
}
