package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "parkspot/pkg/domain-errors"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error hides the message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.Wrap(errors.New("db failed"), dErrors.CodeInternal, "insert failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, "Internal server error", body["error"])
		assert.Equal(t, "internal_error", body["code"])
		assert.NotContains(t, body, "details")
	})

	t.Run("bad request keeps the message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid input"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, "invalid input", body["error"])
		assert.Equal(t, "bad_request", body["code"])
	})

	t.Run("validation fields", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.WithFields(dErrors.CodeMissingFields, "Missing required fields", []string{"email"}))
		assert.Equal(t, []any{"email"}, decode(t, w)["missingFields"])

		w = httptest.NewRecorder()
		WriteError(w, dErrors.WithFields(dErrors.CodeIncompleteAddress, "Incomplete address", []string{"city"}))
		assert.Equal(t, []any{"city"}, decode(t, w)["missingAddressFields"])
	})

	t.Run("plain errors become internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal_error", decode(t, w)["code"])
	})

	t.Run("details only when requested", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteErrorWithDetails(w, dErrors.Wrap(errors.New("conn reset"), dErrors.CodeProfilePersistenceFailed, "Failed to store user data"), true)
		body := decode(t, w)
		assert.Equal(t, "Failed to store user data", body["error"])
		assert.Equal(t, "conn reset", body["details"])
	})
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[dErrors.Code]int{
		dErrors.CodeWeakPassword:        http.StatusBadRequest,
		dErrors.CodeInvalidCredentials:  http.StatusUnauthorized,
		dErrors.CodeConflict:            http.StatusConflict,
		dErrors.CodeRateLimited:         http.StatusTooManyRequests,
		dErrors.CodeProviderUnavailable: http.StatusBadGateway,
		dErrors.CodeInternal:            http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), code)
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Email string `json:"email"`
	}

	for name, tc := range map[string]struct {
		body string
		msg  string
	}{
		"empty":     {body: "", msg: "Request body is required"},
		"malformed": {body: "{nope", msg: "Invalid JSON in request body"},
		"too large": {body: `{"email":"` + strings.Repeat("a", MaxBodyBytes) + `"}`, msg: "Request body too large"},
	} {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			err := DecodeJSON(httptest.NewRecorder(), r, &dst)
			de, ok := dErrors.As(err)
			require.True(t, ok)
			assert.Equal(t, dErrors.CodeBadRequest, de.Code)
			assert.Equal(t, tc.msg, de.Message)
		})
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@x.com"}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), r, &dst))
	assert.Equal(t, "a@x.com", dst.Email)
}
