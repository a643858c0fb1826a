package apperrors

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// MaxJSONBodyBytes bounds every JSON request body.
const MaxJSONBodyBytes = 1 << 20

// ReadJSON decodes a single JSON value from the request body into dst. On
// failure it writes the 400 or 413 response and returns false.
func ReadJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes)
	defer body.Close()

	dec := json.NewDecoder(body)
	err := dec.Decode(dst)
	if err == nil {
		if dec.Decode(&struct{}{}) != io.EOF {
			WriteBadRequest(w, r, "Request body must contain a single JSON value")
			return false
		}
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		WritePayloadTooLarge(w, r, "Request body too large")
	case errors.Is(err, io.EOF):
		WriteBadRequest(w, r, "Request body is required")
	default:
		WriteBadRequest(w, r, "Invalid request body")
	}
	return false
}
