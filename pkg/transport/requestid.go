package transport

import (
	"context"

	"github.com/rhuss/duplex/pkg/api"
)

// HeaderRequestID carries the correlation id on the single-shot transport.
const HeaderRequestID = "x-request-id"

// RequestID returns middleware that makes the correlation id of the
// exchange available through RequestIDFromContext and echoes it in the
// X-Request-ID response header.
func RequestID() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *api.Request) (*api.Response, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, req.ID())
			}
			resp, err := next.Handle(ctx, req)
			if resp != nil {
				resp.SetHeader(HeaderRequestID, req.ID())
			}
			return resp, err
		})
	}
}

type requestIDKey struct{}

// ContextWithRequestID returns a context carrying the correlation id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the correlation id of the exchange. Outside
// the correlation interceptor it falls back to the id of the request in the
// context, and is empty when there is neither.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	if req := api.RequestFromContext(ctx); req != nil {
		return req.ID()
	}
	return ""
}
