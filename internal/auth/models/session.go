package models

import "time"

// Claims is what a valid session proves about its bearer. Local and provider
// sessions are both reduced to this shape.
type Claims struct {
	UserID    string    `json:"id"`
	Email     string    `json:"email"`
	SessionID string    `json:"-"`
	IssuedAt  time.Time `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// Session is a provider-issued session normalized for cookie storage.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Claims       Claims
}

// SignedSession is a locally issued JWT and its validity window.
type SignedSession struct {
	Token     string
	ExpiresAt time.Time
	Claims    Claims
}
