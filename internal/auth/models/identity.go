package models

import (
	"strings"
	"time"
)

// Address is all-or-nothing: a stored address always has every field set.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Identity is one registered account. PasswordHash is empty for identities
// whose credentials live with the external provider.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	ContactNo    string
	Address      *Address
	Coordinates  *Coordinates
	Confirmed    bool
	CreatedAt    time.Time
}

// NormalizeEmail is the comparison form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
