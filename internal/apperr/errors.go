package apperr

import (
	"errors"
	"net/http"
)

// Stable machine codes carried by operational errors.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeAuth       = "AUTH_ERROR"
	CodeForbidden  = "FORBIDDEN"
	CodeNotFound   = "NOT_FOUND"
	CodeConflict   = "CONFLICT"
	CodeRateLimit  = "RATE_LIMIT"
)

// InternalMessage is the only text a client ever sees for unclassified failures.
const InternalMessage = "Ha ocurrido un error inesperado. Por favor, contacta a soporte."

// Error is an operational error: its message is safe to show to clients.
type Error struct {
	Status  int
	Code    string
	Message string
	// Details optionally carries a secondary human-readable explanation.
	Details string

	cause error // logged, never sent
}

func (e *Error) Error() string {
	return e.Message
}

func newError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// WithDetails returns a copy of e carrying a secondary message.
func (e *Error) WithDetails(details string) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// WithCause returns a copy of e wrapping the underlying failure. The cause is
// reachable through errors.Unwrap but never part of Message or Details.
func (e *Error) WithCause(err error) *Error {
	cp := *e
	cp.cause = err
	return &cp
}

func (e *Error) Unwrap() error { return e.cause }

func Validation(message string) *Error {
	return newError(http.StatusBadRequest, CodeValidation, message)
}

func Authentication(message string) *Error {
	if message == "" {
		message = "No autorizado"
	}
	return newError(http.StatusUnauthorized, CodeAuth, message)
}

func Forbidden(message string) *Error {
	if message == "" {
		message = "Acceso denegado"
	}
	return newError(http.StatusForbidden, CodeForbidden, message)
}

func NotFound(message string) *Error {
	if message == "" {
		message = "Recurso no encontrado"
	}
	return newError(http.StatusNotFound, CodeNotFound, message)
}

func Conflict(message string) *Error {
	return newError(http.StatusConflict, CodeConflict, message)
}

func RateLimited(message string) *Error {
	if message == "" {
		message = "Límite de peticiones excedido"
	}
	return newError(http.StatusTooManyRequests, CodeRateLimit, message)
}

// As extracts an operational error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// StatusOf returns the HTTP status for err, 500 for anything unclassified.
func StatusOf(err error) int {
	if ae, ok := As(err); ok {
		return ae.Status
	}
	return http.StatusInternalServerError
}
