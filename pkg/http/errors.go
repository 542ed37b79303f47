package http

import (
	"errors"
	"fmt"
	"net/http"

	"AnimaRex/internal/domain/models"
)

// AppError is an error that knows its HTTP status.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func BadRequestError(message string) *AppError {
	return NewAppError("ERR_BAD_REQUEST", "", message, http.StatusBadRequest)
}

func NotFoundError(message string) *AppError {
	return NewAppError("ERR_NOT_FOUND", "", message, http.StatusNotFound)
}

func ServiceUnavailableError(message string) *AppError {
	return NewAppError("ERR_UNAVAILABLE", "", message, http.StatusServiceUnavailable)
}

func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", "", message, http.StatusInternalServerError)
}

// FromDomain maps the domain error classes onto HTTP errors.
func FromDomain(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return NewAppError("ERR_VALIDATION", verr.Field, verr.Message, http.StatusBadRequest).WithError(err)
	case errors.Is(err, models.ErrNotFound):
		return NotFoundError("not found").WithError(err)
	case models.IsConnectivity(err):
		return ServiceUnavailableError("broker unavailable").WithError(err)
	default:
		return InternalError("internal error").WithError(err)
	}
}
