package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/kol-dashboard/internal/errors"
	"github.com/kol-dashboard/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// MessageResponse is the flat error body of the wallet list endpoint
type MessageResponse struct {
	Message string `json:"message"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondServiceError maps err to a status and writes the error response
func respondServiceError(w http.ResponseWriter, err error) {
	status, code, message, details := mapServiceError(err)
	respondError(w, status, code, message, details)
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// mapServiceError maps service errors to HTTP status codes. Server-side
// failures never expose their cause.
func mapServiceError(err error) (int, string, string, map[string]interface{}) {
	catErr := apperrors.Categorize(err)
	if catErr == nil {
		return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred", nil
	}

	switch {
	case catErr.Category == apperrors.CategoryNotFound:
		return http.StatusNotFound, ErrCodeNotFound, catErr.Message, catErr.Details
	case catErr.Category == apperrors.CategoryConflict:
		return http.StatusConflict, ErrCodeConflict, catErr.Message, catErr.Details
	case catErr.Category == apperrors.CategoryRateLimit:
		return http.StatusTooManyRequests, ErrCodeRateLimitExceeded, catErr.Message, catErr.Details
	case catErr.StatusCode == http.StatusServiceUnavailable:
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable, catErr.Message, nil
	case catErr.StatusCode >= 400 && catErr.StatusCode < 500:
		return catErr.StatusCode, ErrCodeInvalidInput, catErr.Message, catErr.Details
	default:
		return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred", nil
	}
}
