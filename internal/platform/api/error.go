// Package api holds the JSON envelope shared by the HTTP services.
package api

import (
	"net/http"
	"strconv"
)

// Error codes. Clients match on these, never on messages.
const (
	CodeInvalidJSON        = "INVALID_JSON"
	CodeAuthMissing        = "AUTH_MISSING"
	CodeAuthInvalid        = "AUTH_INVALID"
	CodeInvalidCourseID    = "INVALID_COURSE_ID"
	CodeCourseMismatch     = "COURSE_MISMATCH"
	CodeInvalidStatus      = "INVALID_STATUS"
	CodeRateLimited        = "RATE_LIMITED"
	CodeEventPublishFailed = "EVENT_PUBLISH_FAILED"
	CodeInternal           = "INTERNAL"
)

type ErrorResponse struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

func (e APIError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func WriteError(w http.ResponseWriter, status int, code, message, requestID string, details map[string]any) {
	WriteJSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: message, Details: details, RequestID: requestID}})
}

func BadRequest(w http.ResponseWriter, code, message, requestID string, details map[string]any) {
	WriteError(w, http.StatusBadRequest, code, message, requestID, details)
}

func Unauthorized(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusUnauthorized, code, message, requestID, nil)
}

// RateLimited sets Retry-After when retryAfterSec is positive.
func RateLimited(w http.ResponseWriter, requestID string, retryAfterSec int) {
	var details map[string]any
	if retryAfterSec > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
		details = map[string]any{"retry_after_sec": retryAfterSec}
	}
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, "Too many requests", requestID, details)
}

func Unavailable(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusServiceUnavailable, code, message, requestID, nil)
}

func Internal(w http.ResponseWriter, requestID string) {
	WriteError(w, http.StatusInternalServerError, CodeInternal, "Internal server error", requestID, nil)
}
