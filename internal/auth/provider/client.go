// Package provider is a client for a GoTrue-compatible identity provider.
// Only the calls the gateway needs are implemented: password signup and
// sign-in, user lookup by access token, sign-out and the OAuth authorize URL.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"parkspot/pkg/platform/circuit"
)

var (
	ErrInvalidCredentials = errors.New("provider: invalid login credentials")
	ErrAlreadyRegistered  = errors.New("provider: user already registered")
	ErrInvalidToken       = errors.New("provider: invalid or expired token")
	ErrUnavailable        = errors.New("provider: unavailable")
)

// APIError is a 4xx rejection that has no more specific sentinel.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider: %d %s: %s", e.Status, e.Code, e.Message)
}

type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
}

// Confirmed reports whether the provider considers the email verified.
func (u *User) Confirmed() bool {
	return u != nil && u.EmailConfirmedAt != nil
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *User  `json:"user"`
}

// Token returns the session as an oauth2 token.
func (s *Session) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    int64(s.ExpiresIn),
	}
	switch {
	case s.ExpiresAt > 0:
		tok.Expiry = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		tok.Expiry = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return tok
}

// SignUpResult carries the created user. Session is nil when the provider
// requires email confirmation before the first sign-in.
type SignUpResult struct {
	User    *User
	Session *Session
}

// CallObserver receives the latency of each provider round trip.
type CallObserver interface {
	ObserveProviderCall(operation string, start time.Time)
}

type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	observer   CallObserver
	breaker    *circuit.Breaker
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		if d > 0 {
			client.httpClient = &http.Client{Timeout: d}
		}
	}
}

func WithObserver(o CallObserver) Option {
	return func(client *Client) {
		client.observer = o
	}
}

// WithBreaker fails calls fast with ErrUnavailable while b is open.
func WithBreaker(b *circuit.Breaker) Option {
	return func(client *Client) {
		client.breaker = b
	}
}

func NewClient(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type credentialsBody struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

// SignUp creates the canonical identity. Profile metadata is stored with the
// provider user as well as in the local profile store.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error) {
	defer c.observe("signup", time.Now())

	// The provider answers with a session when confirmation is off and with
	// a bare user otherwise; decode both shapes from one body.
	var raw struct {
		Session
		ID               string     `json:"id"`
		Email            string     `json:"email"`
		EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	}
	body := credentialsBody{Email: email, Password: password, Data: metadata}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", body, &raw); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isAlreadyRegistered(apiErr) {
			return nil, ErrAlreadyRegistered
		}
		return nil, err
	}

	if raw.AccessToken != "" && raw.User != nil {
		session := raw.Session
		return &SignUpResult{User: session.User, Session: &session}, nil
	}
	return &SignUpResult{User: &User{ID: raw.ID, Email: raw.Email, EmailConfirmedAt: raw.EmailConfirmedAt}}, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	defer c.observe("signin", time.Now())

	var session Session
	body := credentialsBody{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &session); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.Message)
		}
		return nil, err
	}
	if session.AccessToken == "" || session.User == nil {
		return nil, fmt.Errorf("%w: empty session in response", ErrUnavailable)
	}
	return &session, nil
}

// GetUser resolves an access token to its user. Any rejection is ErrInvalidToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	defer c.observe("get_user", time.Now())

	if accessToken == "" {
		return nil, ErrInvalidToken
	}
	var user User
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &user); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidToken, apiErr.Message)
		}
		return nil, err
	}
	if user.ID == "" {
		return nil, ErrInvalidToken
	}
	return &user, nil
}

// SignOut revokes the session behind accessToken. An already invalid token
// is reported as ErrInvalidToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	defer c.observe("signout", time.Now())
	err := c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
		return fmt.Errorf("%w: %s", ErrInvalidToken, apiErr.Message)
	}
	return err
}

// AuthorizeURL builds the provider redirect for an OAuth sign-in. The
// provider hands the session back to redirectTo in the URL fragment.
func (c *Client) AuthorizeURL(oauthProvider, redirectTo, state string) string {
	cfg := oauth2.Config{
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.baseURL + "/auth/v1/authorize",
			TokenURL: c.baseURL + "/auth/v1/token",
		},
	}
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("provider", oauthProvider),
		oauth2.SetAuthURLParam("redirect_to", redirectTo),
	)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	if c.breaker == nil {
		return c.send(ctx, method, path, bearer, in, out)
	}
	if !c.breaker.Allow() {
		return fmt.Errorf("%w: circuit %s open", ErrUnavailable, c.breaker.Name())
	}
	err := c.send(ctx, method, path, bearer, in, out)
	switch {
	case errors.Is(err, ErrUnavailable) && ctx.Err() == nil:
		c.breaker.RecordFailure()
	case ctx.Err() == nil:
		// A 4xx still proves the provider is up.
		c.breaker.RecordSuccess()
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return parseAPIError(resp.StatusCode, payload)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *Client) observe(operation string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveProviderCall(operation, start)
	}
}

type errorBody struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func parseAPIError(status int, payload []byte) *APIError {
	apiErr := &APIError{Status: status}
	var eb errorBody
	if err := json.Unmarshal(payload, &eb); err != nil {
		apiErr.Message = http.StatusText(status)
		return apiErr
	}
	apiErr.Code = firstNonEmpty(eb.ErrorCode, eb.Error)
	apiErr.Message = firstNonEmpty(eb.Msg, eb.Message, eb.ErrorDescription, http.StatusText(status))
	return apiErr
}

func isAlreadyRegistered(e *APIError) bool {
	if e.Code == "user_already_exists" || e.Code == "email_exists" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "already registered")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// RedirectURL joins the site URL with the callback path.
func RedirectURL(siteURL string) string {
	u, err := url.JoinPath(siteURL, "auth", "callback")
	if err != nil {
		return strings.TrimRight(siteURL, "/") + "/auth/callback"
	}
	return u
}
