package errors

import "net/http"

// Error codes returned to API clients. Messages are generic; details only go to logs.

// Auth error codes.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeTokenExpired = "TOKEN_EXPIRED"
)

// Notification error codes.
const (
	CodeNotificationNotFound = "NOTIFICATION_NOT_FOUND"
	CodeGenerationFailed     = "NOTIFICATION_GENERATION_FAILED"
	CodeInvalidRequestField  = "INVALID_REQUEST_FIELD"
)

// Generic error codes.
const (
	CodeInternal    = "INTERNAL_ERROR"
	CodeRateLimited = "RATE_LIMITED"
)

// ErrGenerationFailed is returned when a whole generation request could not run.
func ErrGenerationFailed(err error) *AppError {
	return Wrap(err, CodeGenerationFailed, "notification generation failed", http.StatusInternalServerError)
}
