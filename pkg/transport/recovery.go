package transport

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rhuss/duplex/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to handler errors carrying the stack as detail. The
// process keeps serving after a panic is recovered.
func Recovery() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *api.Request) (resp *api.Response, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					resp = nil
					retErr = api.NewHandlerError(fmt.Errorf("panic: %v", r)).WithDetail(string(debug.Stack()))
				}
			}()
			return next.Handle(ctx, req)
		})
	}
}
