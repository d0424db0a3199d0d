package registrar

import (
	"strings"
	"unicode/utf8"

	"parkspot/internal/auth/models"
	dErrors "parkspot/pkg/domain-errors"
)

const DefaultMinPasswordLength = 6

// Validate runs every check that must pass before anything is written:
// required fields, then address completeness, then password length.
func Validate(req *models.RegistrationRequest, minPasswordLength int) error {
	if req == nil {
		return dErrors.New(dErrors.CodeBadRequest, "Request body is required")
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"email", req.Email},
		{"password", req.Password},
		{"firstName", req.FirstName},
		{"lastName", req.LastName},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return dErrors.WithFields(dErrors.CodeMissingFields, "Missing required fields", missing)
	}

	if !req.Address.IsZero() {
		var missingAddr []string
		for _, f := range []struct{ name, value string }{
			{"street", req.Address.Street},
			{"city", req.Address.City},
			{"state", req.Address.State},
			{"zipCode", req.Address.ZipCode},
		} {
			if strings.TrimSpace(f.value) == "" {
				missingAddr = append(missingAddr, f.name)
			}
		}
		if len(missingAddr) > 0 {
			return dErrors.WithFields(dErrors.CodeIncompleteAddress, "Incomplete address information", missingAddr)
		}
	}

	if minPasswordLength > 0 && utf8.RuneCountInString(req.Password) < minPasswordLength {
		return dErrors.New(dErrors.CodeWeakPassword, weakPasswordMessage(minPasswordLength))
	}
	return nil
}

func weakPasswordMessage(n int) string {
	if n == DefaultMinPasswordLength {
		return "Password must be at least 6 characters long"
	}
	return "Password is too short"
}

// profileFromRequest copies the trimmed profile fields onto a new identity.
func profileFromRequest(id string, req *models.RegistrationRequest) *models.Identity {
	identity := &models.Identity{
		ID:        id,
		Email:     models.NormalizeEmail(req.Email),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		ContactNo: strings.TrimSpace(req.ContactNo),
	}
	if !req.Address.IsZero() {
		identity.Address = &models.Address{
			Street:  strings.TrimSpace(req.Address.Street),
			City:    strings.TrimSpace(req.Address.City),
			State:   strings.TrimSpace(req.Address.State),
			ZipCode: strings.TrimSpace(req.Address.ZipCode),
		}
	}
	if req.Coordinates != nil {
		c := *req.Coordinates
		identity.Coordinates = &c
	}
	return identity
}
