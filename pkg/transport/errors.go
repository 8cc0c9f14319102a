package transport

import (
	"context"
	"log/slog"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/debug"
)

// ErrorResponse converts err into a response with the stable error shape.
// Debug detail is rendered only while debug.ExposeErrors is on.
func ErrorResponse(err error) *api.Response {
	apiErr := api.AsError(err)
	return api.NewResponse(apiErr.Status(), apiErr.Body(debug.ExposeErrors()))
}

// Errors returns middleware that turns every error and panic raised further
// in into an error response, so nothing outside it sees an error. Failures
// mapped to 500 are logged with the request context and the cause.
func Errors(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		recovered := Recovery()(next)
		return HandlerFunc(func(ctx context.Context, req *api.Request) (*api.Response, error) {
			resp, err := recovered.Handle(ctx, req)
			if err == nil {
				return resp, nil
			}

			apiErr := api.AsError(err)
			if apiErr.Status() >= 500 && apiErr.Kind != api.ErrorKindUnavailable {
				attrs := []any{
					"request_id", req.ID(),
					"method", req.Method,
					"path", req.Path,
					"kind", apiErr.Kind,
					"error", err.Error(),
				}
				if cause := apiErr.Unwrap(); cause != nil {
					attrs = append(attrs, "cause", cause.Error())
				}
				if apiErr.Detail != "" {
					attrs = append(attrs, "detail", apiErr.Detail)
				}
				logger.ErrorContext(ctx, "unhandled error", attrs...)
			}
			return ErrorResponse(apiErr), nil
		})
	}
}
