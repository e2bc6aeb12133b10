package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrValidation ErrorType = "VALIDATION_ERROR"
	ErrAuthFailed ErrorType = "AUTH_FAILED"
	ErrForbidden  ErrorType = "FORBIDDEN"
	ErrNotFound   ErrorType = "NOT_FOUND"
	ErrStore      ErrorType = "STORE_ERROR"
	ErrInternal   ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewValidation(msg string) *AppError {
	return New(ErrValidation, msg, nil)
}

func NewNotFound(msg string) *AppError {
	return New(ErrNotFound, msg, nil)
}

// NewStore wraps a persistence failure. Store errors are never retried
// here; the underlying message is surfaced so callers can decide.
func NewStore(op string, cause error) *AppError {
	return New(ErrStore, op+": store operation failed", cause)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrStore:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrValidation:
		return "Check the request payload against the API reference."
	case ErrAuthFailed:
		return "Check the actor identity headers."
	case ErrForbidden:
		return "The actor lacks the required moderator permission."
	case ErrStore:
		return "Retry the request; the persistent store rejected the operation."
	default:
		return ""
	}
}
