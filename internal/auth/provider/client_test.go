package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"parkspot/pkg/platform/circuit"
)

type ClientSuite struct {
	suite.Suite
	mux    *http.ServeMux
	server *httptest.Server
	client *Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.mux = http.NewServeMux()
	s.server = httptest.NewServer(s.mux)
	s.client = NewClient(s.server.URL+"/", "anon-key")
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *ClientSuite) TestSignUp() {
	s.Run("confirmation required returns bare user", func() {
		s.mux.HandleFunc("POST /auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
			s.Equal("anon-key", r.Header.Get("apikey"))
			var body credentialsBody
			s.Require().NoError(json.NewDecoder(r.Body).Decode(&body))
			s.Equal("a@x.com", body.Email)
			s.Equal("A", body.Data["first_name"])
			writeJSON(w, http.StatusOK, map[string]any{"id": "user-1", "email": "a@x.com"})
		})

		res, err := s.client.SignUp(context.Background(), "a@x.com", "secret1", map[string]any{"first_name": "A"})
		s.Require().NoError(err)
		s.Equal("user-1", res.User.ID)
		s.False(res.User.Confirmed())
		s.Nil(res.Session)
	})
}

func (s *ClientSuite) TestSignUpWithSession() {
	confirmed := time.Now().UTC()
	s.mux.HandleFunc("POST /auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "at",
			"refresh_token": "rt",
			"expires_in":    3600,
			"user":          map[string]any{"id": "user-2", "email": "b@x.com", "email_confirmed_at": confirmed},
		})
	})

	res, err := s.client.SignUp(context.Background(), "b@x.com", "secret1", nil)
	s.Require().NoError(err)
	s.Equal("user-2", res.User.ID)
	s.True(res.User.Confirmed())
	s.Require().NotNil(res.Session)
	s.Equal("at", res.Session.AccessToken)
}

func (s *ClientSuite) TestSignUpAlreadyRegistered() {
	s.mux.HandleFunc("POST /auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"code": 422, "error_code": "user_already_exists", "msg": "User already registered"})
	})

	_, err := s.client.SignUp(context.Background(), "dup@x.com", "secret1", nil)
	s.ErrorIs(err, ErrAlreadyRegistered)
}

func (s *ClientSuite) TestSignUpRejected() {
	s.mux.HandleFunc("POST /auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "Signups not allowed for this instance"})
	})

	_, err := s.client.SignUp(context.Background(), "x@x.com", "secret1", nil)
	var apiErr *APIError
	s.Require().ErrorAs(err, &apiErr)
	s.Equal(http.StatusBadRequest, apiErr.Status)
	s.Equal("Signups not allowed for this instance", apiErr.Message)
}

func (s *ClientSuite) TestSignInWithPassword() {
	s.mux.HandleFunc("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		s.Equal("password", r.URL.Query().Get("grant_type"))
		var body credentialsBody
		s.Require().NoError(json.NewDecoder(r.Body).Decode(&body))
		if body.Password != "secret1" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "Invalid login credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "at", "refresh_token": "rt", "expires_at": 1900000000,
			"user": map[string]any{"id": "user-1", "email": "a@x.com"},
		})
	})

	s.Run("success", func() {
		session, err := s.client.SignInWithPassword(context.Background(), "a@x.com", "secret1")
		s.Require().NoError(err)
		s.Equal("user-1", session.User.ID)
		s.Equal(time.Unix(1900000000, 0), session.Token().Expiry)
	})

	s.Run("wrong password", func() {
		_, err := s.client.SignInWithPassword(context.Background(), "a@x.com", "nope")
		s.ErrorIs(err, ErrInvalidCredentials)
	})
}

func (s *ClientSuite) TestGetUser() {
	s.mux.HandleFunc("GET /auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "invalid JWT"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "user-1", "email": "a@x.com"})
	})

	user, err := s.client.GetUser(context.Background(), "good")
	s.Require().NoError(err)
	s.Equal("a@x.com", user.Email)

	_, err = s.client.GetUser(context.Background(), "bad")
	s.ErrorIs(err, ErrInvalidToken)

	_, err = s.client.GetUser(context.Background(), "")
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *ClientSuite) TestServerErrorIsUnavailable() {
	s.mux.HandleFunc("POST /auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := s.client.SignOut(context.Background(), "at")
	s.ErrorIs(err, ErrUnavailable)
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := NewClient(server.URL, "anon", WithTimeout(time.Second))
	_, err := client.SignInWithPassword(context.Background(), "a@x.com", "secret1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

type recordingObserver struct {
	ops []string
}

func (r *recordingObserver) ObserveProviderCall(operation string, _ time.Time) {
	r.ops = append(r.ops, operation)
}

func TestClient_ObservesCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	obs := &recordingObserver{}
	client := NewClient(server.URL, "anon", WithObserver(obs))
	require.NoError(t, client.SignOut(context.Background(), "at"))
	assert.Equal(t, []string{"signout"}, obs.ops)
}

func TestAuthorizeURL(t *testing.T) {
	client := NewClient("https://id.example.com", "anon")
	raw := client.AuthorizeURL("google", RedirectURL("http://localhost:3000/"), "state-123")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/auth/v1/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "google", q.Get("provider"))
	assert.Equal(t, "http://localhost:3000/auth/callback", q.Get("redirect_to"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "state-123", q.Get("state"))
}

func TestClient_BreakerFailsFast(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	breaker := circuit.New("identity-provider", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	client := NewClient(server.URL, "anon", WithBreaker(breaker))

	for range 3 {
		err := client.SignOut(context.Background(), "at")
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, int32(2), hits.Load())
	assert.True(t, breaker.IsOpen())
}

func TestClient_BreakerCountsRejectionsAsHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "invalid_credentials", "msg": "Invalid login credentials"})
	}))
	defer server.Close()

	breaker := circuit.New("identity-provider", circuit.WithFailureThreshold(1))
	client := NewClient(server.URL, "anon", WithBreaker(breaker))

	_, err := client.SignInWithPassword(context.Background(), "a@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.False(t, breaker.IsOpen())
}
