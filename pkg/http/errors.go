package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"Conductor/internal/domain/models"
	applogger "Conductor/pkg/logger"
)

// AppError represents application-level error with HTTP status.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// NotFoundError creates a 404 error.
func NotFoundError(message string) *AppError {
	return NewAppError("ERR_NOT_FOUND", message, http.StatusNotFound)
}

// BadRequestError creates a 400 error.
func BadRequestError(message string) *AppError {
	return NewAppError("ERR_BAD_REQUEST", message, http.StatusBadRequest)
}

// InternalError creates a 500 error.
func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", message, http.StatusInternalServerError)
}

// FromDomainError maps domain sentinel errors onto HTTP errors.
func FromDomainError(err error) *AppError {
	var ae *AppError
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, models.ErrIntentNotFound):
		return NotFoundError("intent not found").WithError(err)
	case errors.Is(err, models.ErrConfig):
		return BadRequestError(err.Error()).WithError(err)
	default:
		return InternalError("internal error").WithError(err)
	}
}

func errorHandler(l *applogger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = DataResponse(c, he.Code, fmt.Sprint(he.Message))
			return
		}
		ae := FromDomainError(err)
		if ae.Status >= http.StatusInternalServerError {
			l.Error("http handler error", applogger.String("path", c.Path()), applogger.Error(err))
		}
		_ = DataResponse(c, ae.Status, ae)
	}
}
