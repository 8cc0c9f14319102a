package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rhuss/duplex/pkg/wire"
)

// ErrorKind represents the category of an error in the taxonomy.
type ErrorKind string

const (
	ErrorKindDecode        ErrorKind = "decode_error"
	ErrorKindEnvelope      ErrorKind = "envelope_error"
	ErrorKindAuthorization ErrorKind = "authorization_error"
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindValidation    ErrorKind = "validation_error"
	ErrorKindUnavailable   ErrorKind = "unavailable"
	ErrorKindHandler       ErrorKind = "handler_error"
)

// Codes used for errors raised outside the router. Two of them refine the
// status of their kind: unauthenticated answers 401 and rate_limited 429.
const (
	CodeTimeout         = "timeout"
	CodeRateLimited     = "rate_limited"
	CodeOverloaded      = "overloaded"
	CodeCapability      = "capability_missing"
	CodeUnauthenticated = "unauthenticated"
)

// Error is a structured error with kind, code, param and message. Detail
// carries debug information and is only rendered when error exposure is on.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Kind, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Status returns the status code for the error kind.
func (e *Error) Status() int {
	switch e.Kind {
	case ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindAuthorization:
		if e.Code == CodeUnauthenticated {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case ErrorKindValidation, ErrorKindDecode, ErrorKindEnvelope:
		return http.StatusBadRequest
	case ErrorKindUnavailable:
		if e.Code == CodeRateLimited {
			return http.StatusTooManyRequests
		}
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Body renders the stable error shape. Detail is included only when
// exposeDetail is true.
func (e *Error) Body(exposeDetail bool) map[string]any {
	body := map[string]any{
		"kind":    string(e.Kind),
		"message": e.Message,
	}
	if e.Code != "" {
		body["code"] = e.Code
	}
	if e.Param != "" {
		body["param"] = e.Param
	}
	if exposeDetail && e.Detail != "" {
		body["detail"] = e.Detail
	}
	return map[string]any{"error": body}
}

// WithDetail returns a copy of e carrying debug detail.
func (e *Error) WithDetail(detail string) *Error {
	c := *e
	c.Detail = detail
	return &c
}

// ErrorResponse wraps an Error for serialization as the top-level error body.
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// NewDecodeError creates an Error for a malformed typed token or container.
func NewDecodeError(message string, cause error) *Error {
	return &Error{Kind: ErrorKindDecode, Code: "malformed_payload", Message: message, cause: cause}
}

// NewEnvelopeError creates an Error for malformed or out-of-sequence
// envelope messages.
func NewEnvelopeError(code, message string) *Error {
	return &Error{Kind: ErrorKindEnvelope, Code: code, Message: message}
}

// NewAuthorizationError creates an Error for a failed tag expression.
func NewAuthorizationError(message string) *Error {
	return &Error{Kind: ErrorKindAuthorization, Code: "forbidden", Message: message}
}

// NewUnauthenticatedError creates an authorization error for a caller
// without valid credentials.
func NewUnauthenticatedError(message string) *Error {
	return &Error{Kind: ErrorKindAuthorization, Code: CodeUnauthenticated, Message: message}
}

// NewNotFoundError creates an Error for paths that resolve to nothing.
func NewNotFoundError(message string) *Error {
	return &Error{Kind: ErrorKindNotFound, Code: "route_not_found", Message: message}
}

// NewValidationError creates an Error for a parameter that failed binding
// or coercion.
func NewValidationError(param, message string) *Error {
	return &Error{Kind: ErrorKindValidation, Code: "invalid_parameter", Param: param, Message: message}
}

// NewUnavailableError creates an Error for a route or service the caller
// cannot use right now.
func NewUnavailableError(code, message string) *Error {
	return &Error{Kind: ErrorKindUnavailable, Code: code, Message: message}
}

// NewHandlerError wraps an unexpected failure raised inside handler code.
func NewHandlerError(cause error) *Error {
	return &Error{Kind: ErrorKindHandler, Code: "internal_error", Message: "internal error", cause: cause}
}

// AsError converts any error into an *Error. Taxonomy errors are returned
// as is; wire decode failures become decode errors; context deadlines become
// timeouts; anything else is wrapped as a handler error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var decErr *wire.DecodeError
	if errors.As(err, &decErr) {
		return NewDecodeError(decErr.Error(), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		e := NewUnavailableError(CodeTimeout, "request timed out")
		e.cause = err
		return e
	}
	return NewHandlerError(err)
}

// StatusFromError maps an error onto a status code using the fixed table.
// A nil error maps to 200.
func StatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return AsError(err).Status()
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}
