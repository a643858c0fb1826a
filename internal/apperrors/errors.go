package apperrors

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Error codes of the response envelope.
const (
	CodeBadRequest         = "bad_request"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeAccessDenied       = "access_denied"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodePayloadTooLarge    = "payload_too_large"
	CodeTooManyRequests    = "too_many_requests"
	CodeInternal           = "internal_error"
	CodeServiceUnavailable = "service_unavailable"
)

// ErrorResponse is the error envelope returned by every API route.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request. Field names the offending input of
// a validation failure.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id"`
}

// SuccessResponse is the success envelope returned by every API route.
type SuccessResponse struct {
	RequestID string      `json:"request_id"`
	Data      interface{} `json:"data"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().
			Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Msg("Failed to encode response")
	}
}

// WriteError writes an error response in the standard envelope format.
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	writeDetail(w, r, statusCode, ErrorDetail{Code: code, Message: message})
}

func writeDetail(w http.ResponseWriter, r *http.Request, statusCode int, d ErrorDetail) {
	d.RequestID = GetRequestID(r.Context())
	writeJSON(w, r, statusCode, ErrorResponse{Error: d})
}

// WriteSuccess writes a success response in the standard envelope format.
func WriteSuccess(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	writeJSON(w, r, statusCode, SuccessResponse{
		RequestID: GetRequestID(r.Context()),
		Data:      data,
	})
}

func WriteServiceUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}

func WriteInternalError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusInternalServerError, CodeInternal, message)
}

func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, CodeBadRequest, message)
}

// WriteInvalidField is a 400 for a single malformed input.
func WriteInvalidField(w http.ResponseWriter, r *http.Request, field, message string) {
	writeDetail(w, r, http.StatusBadRequest, ErrorDetail{Code: CodeBadRequest, Message: message, Field: field})
}

func WriteUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized, message)
}

// WriteForbidden is a 403 outside the capability matrix, such as a bad CSRF token.
func WriteForbidden(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusForbidden, CodeForbidden, message)
}

// WriteAccessDenied is a 403 from the capability matrix. It never says which
// check failed.
func WriteAccessDenied(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusForbidden, CodeAccessDenied, "Access denied")
}

func WriteNotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusNotFound, CodeNotFound, message)
}

func WriteConflict(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusConflict, CodeConflict, message)
}

func WritePayloadTooLarge(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, message)
}

func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusTooManyRequests, CodeTooManyRequests, message)
}
