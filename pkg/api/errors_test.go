package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/rhuss/duplex/pkg/wire"
)

func TestErrorInterface(t *testing.T) {
	var _ error = &Error{}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			"with param",
			NewValidationError("n", "must be an integer"),
			"validation_error: must be an integer (param: n)",
		},
		{
			"without param",
			NewNotFoundError("no route for /x"),
			"not_found: no route for /x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", NewNotFoundError("x"), http.StatusNotFound},
		{"authorization", NewAuthorizationError("x"), http.StatusForbidden},
		{"validation", NewValidationError("p", "x"), http.StatusBadRequest},
		{"unauthenticated", NewUnauthenticatedError("x"), http.StatusUnauthorized},
		{"unavailable", NewUnavailableError(CodeCapability, "x"), http.StatusServiceUnavailable},
		{"rate limited", NewUnavailableError(CodeRateLimited, "x"), http.StatusTooManyRequests},
		{"decode", NewDecodeError("x", nil), http.StatusBadRequest},
		{"envelope", NewEnvelopeError("malformed", "x"), http.StatusBadRequest},
		{"handler", NewHandlerError(errors.New("boom")), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped taxonomy", fmt.Errorf("resolve: %w", NewNotFoundError("x")), http.StatusNotFound},
		{"wire decode", &wire.DecodeError{Token: "x::ZZ", Err: errors.New("unknown")}, http.StatusBadRequest},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFromError(tt.err); got != tt.want {
				t.Errorf("StatusFromError() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAsErrorKeepsCause(t *testing.T) {
	cause := errors.New("database is down")
	e := AsError(cause)
	if e.Kind != ErrorKindHandler {
		t.Errorf("Kind = %q, want %q", e.Kind, ErrorKindHandler)
	}
	if !errors.Is(e, cause) {
		t.Error("handler error does not unwrap to its cause")
	}
	if e.Message == cause.Error() {
		t.Error("handler error message leaks the cause")
	}
	if AsError(nil) != nil {
		t.Error("AsError(nil) should be nil")
	}
}

func TestErrorBody(t *testing.T) {
	e := NewValidationError("n", "bad").WithDetail("stack")

	hidden := e.Body(false)["error"].(map[string]any)
	if _, ok := hidden["detail"]; ok {
		t.Error("detail rendered while exposure is off")
	}
	if hidden["kind"] != "validation_error" || hidden["code"] != "invalid_parameter" || hidden["param"] != "n" {
		t.Errorf("body = %v", hidden)
	}

	shown := e.Body(true)["error"].(map[string]any)
	if shown["detail"] != "stack" {
		t.Errorf("detail = %v, want stack", shown["detail"])
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewAuthorizationError("nope"))
	if !IsKind(err, ErrorKindAuthorization) {
		t.Error("IsKind should see through wrapping")
	}
	if IsKind(err, ErrorKindNotFound) {
		t.Error("IsKind matched the wrong kind")
	}
}
