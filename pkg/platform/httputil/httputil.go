package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "parkspot/pkg/domain-errors"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

// ErrorResponse is the JSON envelope for every failed request.
type ErrorResponse struct {
	Error                string   `json:"error"`
	Code                 string   `json:"code"`
	MissingFields        []string `json:"missingFields,omitempty"`
	MissingAddressFields []string `json:"missingAddressFields,omitempty"`
	Details              string   `json:"details,omitempty"`
}

// ToHTTPStatus maps a domain error code onto an HTTP status.
func ToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeMissingFields, dErrors.CodeIncompleteAddress,
		dErrors.CodeWeakPassword, dErrors.CodeProviderError:
		return http.StatusBadRequest
	case dErrors.CodeInvalidCredentials, dErrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the error envelope without internal details.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorWithDetails(w, err, false)
}

// WriteErrorWithDetails writes the error envelope. When includeDetails is set
// the wrapped cause of server-side failures is exposed in "details"; callers
// only enable it outside production.
func WriteErrorWithDetails(w http.ResponseWriter, err error, includeDetails bool) {
	de, ok := dErrors.As(err)
	if !ok {
		de = dErrors.Wrap(err, dErrors.CodeInternal, "Internal server error")
	}
	status := ToHTTPStatus(de.Code)

	resp := ErrorResponse{
		Error: de.Message,
		Code:  string(de.Code),
	}
	switch de.Code {
	case dErrors.CodeMissingFields:
		resp.MissingFields = de.Fields
	case dErrors.CodeIncompleteAddress:
		resp.MissingAddressFields = de.Fields
	}
	if status >= http.StatusInternalServerError {
		if de.Code == dErrors.CodeInternal {
			resp.Error = "Internal server error"
		}
		if includeDetails && de.Err != nil {
			resp.Details = de.Err.Error()
		}
	}
	WriteJSON(w, status, resp)
}

// DecodeJSON decodes a size-limited JSON body into dst. Malformed input is
// reported as a bad_request domain error.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return dErrors.New(dErrors.CodeBadRequest, "Request body too large")
		}
		if errors.Is(err, io.EOF) {
			return dErrors.New(dErrors.CodeBadRequest, "Request body is required")
		}
		return dErrors.New(dErrors.CodeBadRequest, "Invalid JSON in request body")
	}
	return nil
}
