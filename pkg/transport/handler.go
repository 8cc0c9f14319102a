package transport

import (
	"context"

	"github.com/rhuss/duplex/pkg/api"
)

// Handler processes one exchange. The returned response is nil exactly when
// the error is non-nil.
type Handler interface {
	Handle(ctx context.Context, req *api.Request) (*api.Response, error)
}

// HandlerFunc is an adapter that allows using an ordinary function as a
// Handler.
type HandlerFunc func(ctx context.Context, req *api.Request) (*api.Response, error)

// Handle calls f(ctx, req).
func (f HandlerFunc) Handle(ctx context.Context, req *api.Request) (*api.Response, error) {
	return f(ctx, req)
}
