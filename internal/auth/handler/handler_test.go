package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"parkspot/internal/auth/handler/mocks"
	"parkspot/internal/auth/models"
	"parkspot/internal/auth/service"
	"parkspot/internal/auth/session"
	"parkspot/internal/platform/middleware"
	dErrors "parkspot/pkg/domain-errors"
	"parkspot/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/auth-mocks.go -package=mocks AuthService
type HandlerSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	mockService *mocks.MockAuthService
	router      chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockService = mocks.NewMockAuthService(s.ctrl)
	s.router = s.newRouter()
}

func (s *HandlerSuite) newRouter(opts ...Option) chi.Router {
	r := chi.NewRouter()
	New(s.mockService, slog.New(slog.DiscardHandler), opts...).Register(r)
	return r
}

func (s *HandlerSuite) do(req *http.Request) (int, map[string]any, *http.Response) {
	rr := testutil.DoRequest(s.router, req)
	res := rr.Result()
	return rr.Code, testutil.UnmarshalErrorResponse(s.T(), rr), res
}

func (s *HandlerSuite) TestLogin() {
	req := models.LoginRequest{Email: "a@x.com", Password: "secret1"}

	s.Run("success sets the session cookie", func() {
		s.mockService.EXPECT().Login(gomock.Any(), req).Return(&service.LoginResult{
			User:    models.Claims{UserID: "u-1", Email: "a@x.com"},
			Cookies: []*http.Cookie{{Name: session.TokenCookie, Value: "jwt", HttpOnly: true}},
		}, nil)

		status, body, res := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", req))

		s.Equal(http.StatusOK, status)
		s.Equal("Login successful", body["message"])
		s.Equal(map[string]any{"id": "u-1", "email": "a@x.com"}, body["user"])
		s.Require().Len(res.Cookies(), 1)
		s.Equal("jwt", res.Cookies()[0].Value)
	})

	s.Run("invalid credentials keep the legacy shape", func() {
		s.mockService.EXPECT().Login(gomock.Any(), req).
			Return(nil, dErrors.New(dErrors.CodeInvalidCredentials, "Invalid credentials"))

		status, body, res := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", req))

		s.Equal(http.StatusUnauthorized, status)
		s.Equal(map[string]any{"message": "Invalid credentials", "error": "invalid_credentials"}, body)
		s.Empty(res.Cookies())
	})

	s.Run("malformed body never reaches the service", func() {
		s.mockService.EXPECT().Login(gomock.Any(), gomock.Any()).Times(0)

		status, body, _ := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/auth/login", "{bad-json"))

		s.Equal(http.StatusBadRequest, status)
		s.Equal("bad_request", body["code"])
	})

	s.Run("provider outage is a gateway error", func() {
		s.mockService.EXPECT().Login(gomock.Any(), req).
			Return(nil, dErrors.New(dErrors.CodeProviderUnavailable, "Identity provider unavailable"))

		status, body, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", req))

		s.Equal(http.StatusBadGateway, status)
		s.Equal("provider_unavailable", body["code"])
	})
}

func (s *HandlerSuite) TestSignup() {
	req := &models.RegistrationRequest{Email: "a@x.com", Password: "secret1", FirstName: "A", LastName: "B"}

	s.Run("created", func() {
		s.mockService.EXPECT().Signup(gomock.Any(), req).Return(&service.SignupResult{
			Message:            "User created successfully",
			RegistrationResult: models.RegistrationResult{UserID: "u-1", Email: "a@x.com"},
		}, nil)

		status, body, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/signup", req))

		s.Equal(http.StatusCreated, status)
		s.Equal("User created successfully", body["message"])
		s.Equal("u-1", body["userId"])
		s.Equal("a@x.com", body["email"])
		s.Equal(false, body["requiresConfirmation"])
	})

	s.Run("missing fields are listed", func() {
		s.mockService.EXPECT().Signup(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.WithFields(dErrors.CodeMissingFields, "Missing required fields", []string{"firstName", "lastName"}))

		status, body, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/signup", map[string]string{"email": "a@x.com"}))

		s.Equal(http.StatusBadRequest, status)
		s.Equal("missing_fields", body["code"])
		s.Equal([]any{"firstName", "lastName"}, body["missingFields"])
	})

	s.Run("incomplete address is listed", func() {
		s.mockService.EXPECT().Signup(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.WithFields(dErrors.CodeIncompleteAddress, "Incomplete address", []string{"zipCode"}))

		status, body, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/signup", req))

		s.Equal(http.StatusBadRequest, status)
		s.Equal([]any{"zipCode"}, body["missingAddressFields"])
	})

	s.Run("duplicate email is a conflict", func() {
		s.mockService.EXPECT().Signup(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "User with this email already exists"))

		status, body, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/signup", req))

		s.Equal(http.StatusConflict, status)
		s.Equal("user_exists", body["code"])
	})

	s.Run("details hidden by default", func() {
		s.mockService.EXPECT().Signup(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Wrap(errors.New("pq: relation missing"), dErrors.CodeProfilePersistenceFailed, "Failed to store user data"))

		status, body, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/signup", req))

		s.Equal(http.StatusInternalServerError, status)
		s.Equal("Failed to store user data", body["error"])
		s.NotContains(body, "details")
	})

	s.Run("details shown when enabled", func() {
		s.router = s.newRouter(WithErrorDetails(true))
		s.mockService.EXPECT().Signup(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Wrap(errors.New("pq: relation missing"), dErrors.CodeProfilePersistenceFailed, "Failed to store user data"))

		_, body, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/signup", req))

		s.Equal("pq: relation missing", body["details"])
	})
}

func (s *HandlerSuite) TestOAuth() {
	s.Run("returns the provider url", func() {
		s.mockService.EXPECT().OAuthURL(gomock.Any(), "google").Return(&service.OAuthResult{
			URL:     "https://id.example.com/authorize?provider=google",
			Cookies: []*http.Cookie{{Name: session.StateCookie, Value: "st"}},
		}, nil)

		status, body, res := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/auth/oauth/google"))

		s.Equal(http.StatusOK, status)
		s.Equal("https://id.example.com/authorize?provider=google", body["url"])
		s.Require().Len(res.Cookies(), 1)
		s.Equal(session.StateCookie, res.Cookies()[0].Name)
	})

	s.Run("unknown provider", func() {
		s.mockService.EXPECT().OAuthURL(gomock.Any(), "myspace").
			Return(nil, dErrors.New(dErrors.CodeBadRequest, "Unsupported OAuth provider"))

		status, _, _ := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/auth/oauth/myspace"))

		s.Equal(http.StatusBadRequest, status)
	})
}

func (s *HandlerSuite) TestCallback() {
	body := models.CallbackRequest{AccessToken: "at", RefreshToken: "rt", State: "st"}

	s.Run("sets provider cookies", func() {
		s.mockService.EXPECT().
			ExchangeCallback(gomock.Any(), body, service.SessionCookies{State: "st"}).
			Return(&service.CallbackResult{
				User: models.Claims{UserID: "p-1", Email: "a@x.com"},
				Cookies: []*http.Cookie{
					{Name: session.AccessTokenCookie, Value: "at"},
					{Name: session.RefreshTokenCookie, Value: "rt"},
				},
			}, nil)

		req := testutil.WithCookie(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/callback", body), session.StateCookie, "st")
		status, resp, res := s.do(req)

		s.Equal(http.StatusOK, status)
		s.Equal(map[string]any{"id": "p-1", "email": "a@x.com"}, resp["user"])
		s.Len(res.Cookies(), 2)
	})

	s.Run("failure leaves cookies untouched", func() {
		s.mockService.EXPECT().ExchangeCallback(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnauthenticated, "Authentication failed"))

		status, resp, res := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/callback", body))

		s.Equal(http.StatusUnauthorized, status)
		s.Equal("Authentication failed", resp["error"])
		s.Empty(res.Cookies())
	})
}

func (s *HandlerSuite) TestLogout() {
	s.Run("clears cookies", func() {
		s.mockService.EXPECT().Logout(gomock.Any(), service.SessionCookies{Token: "jwt"}).
			Return(&service.LogoutResult{Cookies: session.Cookies{}.Clear()}, nil)

		req := testutil.WithCookie(testutil.NewRequest(s.T(), http.MethodPost, "/auth/logout"), session.TokenCookie, "jwt")
		status, body, res := s.do(req)

		s.Equal(http.StatusOK, status)
		s.Equal("Logged out successfully", body["message"])
		for _, c := range res.Cookies() {
			s.Negative(c.MaxAge, c.Name)
		}
	})

	s.Run("provider failure is a bad request", func() {
		s.mockService.EXPECT().Logout(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeProviderUnavailable, "Identity provider unavailable"))

		status, body, _ := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/auth/logout"))

		s.Equal(http.StatusBadRequest, status)
		s.Equal("Identity provider unavailable", body["error"])
	})
}

func (s *HandlerSuite) TestMe() {
	s.Run("authenticated", func() {
		s.mockService.EXPECT().CurrentIdentity(gomock.Any(), service.SessionCookies{AccessToken: "at"}).
			Return(&models.Claims{UserID: "p-1", Email: "a@x.com"}, nil)

		req := testutil.WithCookie(testutil.NewRequest(s.T(), http.MethodGet, "/auth/me"), session.AccessTokenCookie, "at")
		status, body, _ := s.do(req)

		s.Equal(http.StatusOK, status)
		s.Equal(map[string]any{"id": "p-1", "email": "a@x.com"}, body["user"])
	})

	s.Run("unauthenticated renders a null user", func() {
		s.mockService.EXPECT().CurrentIdentity(gomock.Any(), gomock.Any()).Return(nil, service.ErrUnauthenticated)

		status, body, _ := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/auth/me"))

		s.Equal(http.StatusUnauthorized, status)
		s.Contains(body, "user")
		s.Nil(body["user"])
	})
}

func TestHandler_RateLimitsLoginAndSignup(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockAuthService(ctrl)
	limiter := middleware.NewRateLimiter(0.001, 1, middleware.WithCleanupInterval(time.Hour))
	t.Cleanup(limiter.Stop)

	r := chi.NewRouter()
	New(svc, slog.New(slog.DiscardHandler), WithRateLimiter(limiter)).Register(r)

	svc.EXPECT().Login(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeInvalidCredentials, "Invalid credentials")).Times(1)
	svc.EXPECT().CurrentIdentity(gomock.Any(), gomock.Any()).Return(nil, service.ErrUnauthenticated).Times(2)

	body := `{"email":"a@x.com","password":"secret1"}`
	first := testutil.DoRequest(r, testutil.NewRequestWithBody(t, http.MethodPost, "/auth/login", body))
	assert.Equal(t, http.StatusUnauthorized, first.Code)

	second := testutil.DoRequest(r, testutil.NewRequestWithBody(t, http.MethodPost, "/auth/signup", body))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	for range 2 {
		me := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/auth/me"))
		assert.Equal(t, http.StatusUnauthorized, me.Code)
	}
}

func TestRegisterOps(t *testing.T) {
	r := chi.NewRouter()
	RegisterOps(r, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	}))

	health := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	assert.Equal(t, http.StatusOK, health.Code)
	assert.JSONEq(t, `{"status":"ok"}`, health.Body.String())

	m := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	assert.True(t, strings.HasPrefix(m.Body.String(), "# metrics"))

	missing := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/wp-login.php"))
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.JSONEq(t, `{"error":"Not found","code":"not_found"}`, missing.Body.String())
}
