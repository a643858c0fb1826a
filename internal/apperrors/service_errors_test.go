package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/joffchandler/Sentinel-flight-ops/internal/authz"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/validation"
	"github.com/stretchr/testify/require"
)

func TestWriteServiceError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		field  string
	}{
		{"denied", fmt.Errorf("update: %w", authz.ErrAccessDenied), http.StatusForbidden, CodeAccessDenied, ""},
		{"validation", validation.Required("reason"), http.StatusBadRequest, CodeBadRequest, "reason"},
		{"not found", docstore.ErrNotFound, http.StatusNotFound, CodeNotFound, ""},
		{"conflict", docstore.ErrConflict, http.StatusConflict, CodeConflict, ""},
		{"other", errors.New("connection reset"), http.StatusInternalServerError, CodeInternal, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				WriteServiceError(w, r, tc.err, "apply override")
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

			require.Equal(t, tc.status, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.code, body.Error.Code)
			require.Equal(t, tc.field, body.Error.Field)
			require.Equal(t, rec.Header().Get(RequestIDHeader), body.Error.RequestID)
			require.NotContains(t, body.Error.Message, "connection reset")
		})
	}
}

func TestRequestIDMiddleware_ReusesValidIDs(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "0b7e3a5c-3f3c-4b7e-9a57-3c1d0f2b9e11")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "0b7e3a5c-3f3c-4b7e-9a57-3c1d0f2b9e11", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid\nInjected: yes")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Len(t, seen, 36)
}
