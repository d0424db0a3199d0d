package models

// AddressInput is the address as submitted. Blank fields count as missing.
type AddressInput struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
}

// IsZero reports whether no address field was supplied at all.
func (a *AddressInput) IsZero() bool {
	return a == nil || (a.Street == "" && a.City == "" && a.State == "" && a.ZipCode == "")
}

type RegistrationRequest struct {
	Email       string        `json:"email"`
	Password    string        `json:"password"`
	FirstName   string        `json:"firstName"`
	LastName    string        `json:"lastName"`
	ContactNo   string        `json:"contactNo,omitempty"`
	Address     *AddressInput `json:"address,omitempty"`
	Coordinates *Coordinates  `json:"coordinates,omitempty"`
}

type RegistrationResult struct {
	UserID               string
	Email                string
	RequiresConfirmation bool
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CallbackRequest carries the tokens the provider put in the redirect
// fragment. State is optional and checked against the oauth_state cookie.
type CallbackRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	State        string `json:"state,omitempty"`
}
