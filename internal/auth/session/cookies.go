package session

import (
	"net/http"
	"time"

	"parkspot/internal/auth/models"
)

const (
	TokenCookie        = "token"
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"
	StateCookie        = "oauth_state"
)

const stateCookieTTL = 10 * time.Minute

// Cookies builds cookies with the attributes every session cookie shares:
// http-only, SameSite=Strict, whole-site path, Secure in production.
type Cookies struct {
	Secure bool
}

func (c Cookies) build(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (c Cookies) expired(name string) *http.Cookie {
	cookie := c.build(name, "", -1)
	cookie.Expires = time.Unix(0, 0)
	return cookie
}

// Token is the cookie for a locally issued session. MaxAge matches the
// token's validity window.
func (c Cookies) Token(s *models.SignedSession) *http.Cookie {
	return c.build(TokenCookie, s.Token, maxAge(s.ExpiresAt, s.Claims.IssuedAt))
}

// Provider returns the access and refresh token cookies.
func (c Cookies) Provider(s *models.Session, now time.Time) []*http.Cookie {
	age := maxAge(s.ExpiresAt, now)
	cookies := []*http.Cookie{c.build(AccessTokenCookie, s.AccessToken, age)}
	if s.RefreshToken != "" {
		// The refresh token outlives the access token.
		cookies = append(cookies, c.build(RefreshTokenCookie, s.RefreshToken, int((30*24*time.Hour).Seconds())))
	}
	return cookies
}

// State carries the OAuth state between init and callback. It is Lax so the
// provider's top-level redirect back to the site still sends it.
func (c Cookies) State(state string) *http.Cookie {
	cookie := c.build(StateCookie, state, int(stateCookieTTL.Seconds()))
	cookie.SameSite = http.SameSiteLaxMode
	return cookie
}

// Clear expires every session cookie the gateway may have set.
func (c Cookies) Clear() []*http.Cookie {
	return []*http.Cookie{
		c.expired(TokenCookie),
		c.expired(AccessTokenCookie),
		c.expired(RefreshTokenCookie),
	}
}

func maxAge(expiresAt, now time.Time) int {
	if expiresAt.IsZero() {
		return int(DefaultTTL.Seconds())
	}
	secs := int(expiresAt.Sub(now).Round(time.Second).Seconds())
	if secs <= 0 {
		return -1
	}
	return secs
}
