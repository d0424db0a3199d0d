package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"parkspot/internal/auth/models"
	"parkspot/internal/auth/service"
	"parkspot/internal/auth/session"
	"parkspot/internal/platform/middleware"
	dErrors "parkspot/pkg/domain-errors"
	"parkspot/pkg/platform/httputil"
	"parkspot/pkg/requestcontext"
)

// AuthService is the façade the auth routes are served from.
type AuthService interface {
	Login(ctx context.Context, req models.LoginRequest) (*service.LoginResult, error)
	Signup(ctx context.Context, req *models.RegistrationRequest) (*service.SignupResult, error)
	OAuthURL(ctx context.Context, oauthProvider string) (*service.OAuthResult, error)
	ExchangeCallback(ctx context.Context, req models.CallbackRequest, presented service.SessionCookies) (*service.CallbackResult, error)
	Logout(ctx context.Context, presented service.SessionCookies) (*service.LogoutResult, error)
	CurrentIdentity(ctx context.Context, presented service.SessionCookies) (*models.Claims, error)
}

// Handler serves the /auth routes.
type Handler struct {
	auth           AuthService
	logger         *slog.Logger
	limiter        *middleware.RateLimiter
	includeDetails bool
}

type Option func(*Handler)

// WithRateLimiter throttles login and signup per client IP.
func WithRateLimiter(rl *middleware.RateLimiter) Option {
	return func(h *Handler) {
		h.limiter = rl
	}
}

// WithErrorDetails exposes the cause of server-side failures in responses.
func WithErrorDetails(enabled bool) Option {
	return func(h *Handler) {
		h.includeDetails = enabled
	}
}

func New(auth AuthService, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{auth: auth, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Register mounts the auth routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(h.limiter.Middleware)
			}
			r.Post("/login", h.handleLogin)
			r.Post("/signup", h.handleSignup)
		})
		r.Post("/oauth/{provider}", h.handleOAuth)
		r.Post("/callback", h.handleCallback)
		r.Post("/logout", h.handleLogout)
		r.Get("/me", h.handleMe)
	})
}

// RegisterOps mounts the health and metrics endpoints.
func RegisterOps(r chi.Router, metricsHandler http.Handler) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "Not found"))
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.LoginRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.auth.Login(ctx, req)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidCredentials) {
			httputil.WriteJSON(w, http.StatusUnauthorized, loginFailureResponse{
				Message: "Invalid credentials",
				Error:   string(dErrors.CodeInvalidCredentials),
			})
			return
		}
		h.writeError(w, r, err)
		return
	}

	setCookies(w, res.Cookies)
	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		Message: "Login successful",
		User:    toUserResponse(res.User),
	})
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.RegistrationRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.auth.Signup(ctx, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, signupResponse{
		Message:              res.Message,
		UserID:               res.UserID,
		Email:                res.Email,
		RequiresConfirmation: res.RequiresConfirmation,
	})
}

func (h *Handler) handleOAuth(w http.ResponseWriter, r *http.Request) {
	res, err := h.auth.OAuthURL(r.Context(), chi.URLParam(r, "provider"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	setCookies(w, res.Cookies)
	httputil.WriteJSON(w, http.StatusOK, oauthResponse{URL: res.URL})
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	var req models.CallbackRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.auth.ExchangeCallback(r.Context(), req, presentedCookies(r))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "Authentication failed"))
		return
	}

	setCookies(w, res.Cookies)
	user := toUserResponse(res.User)
	httputil.WriteJSON(w, http.StatusOK, meResponse{User: &user})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := h.auth.Logout(ctx, presentedCookies(r))
	if err != nil {
		h.logger.WarnContext(ctx, "logout failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		resp := httputil.ErrorResponse{Error: "Logout failed", Code: string(dErrors.CodeInternal)}
		if de, ok := dErrors.As(err); ok {
			resp.Error = de.Message
			resp.Code = string(de.Code)
		}
		httputil.WriteJSON(w, http.StatusBadRequest, resp)
		return
	}

	setCookies(w, res.Cookies)
	httputil.WriteJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, err := h.auth.CurrentIdentity(r.Context(), presentedCookies(r))
	if err != nil {
		httputil.WriteJSON(w, http.StatusUnauthorized, meResponse{})
		return
	}
	user := toUserResponse(*claims)
	httputil.WriteJSON(w, http.StatusOK, meResponse{User: &user})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	de, ok := dErrors.As(err)
	if !ok || httputil.ToHTTPStatus(de.Code) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed",
			"path", r.URL.Path,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteErrorWithDetails(w, err, h.includeDetails)
}

func presentedCookies(r *http.Request) service.SessionCookies {
	return service.SessionCookies{
		Token:        cookieValue(r, session.TokenCookie),
		AccessToken:  cookieValue(r, session.AccessTokenCookie),
		RefreshToken: cookieValue(r, session.RefreshTokenCookie),
		State:        cookieValue(r, session.StateCookie),
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func setCookies(w http.ResponseWriter, cookies []*http.Cookie) {
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
}
