package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/rhuss/duplex/pkg/api"
)

const defaultTimeout = 30 * time.Second

// Timeout returns middleware that bounds each exchange to d. When the
// deadline passes first, the exchange fails with an unavailable error coded
// "timeout"; the handler keeps its cancelled context and its late result
// is discarded.
func Timeout(d time.Duration) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *api.Request) (*api.Response, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type result struct {
				resp *api.Response
				err  error
			}
			done := make(chan result, 1)
			go func() {
				var r result
				defer func() {
					if p := recover(); p != nil {
						r = result{err: api.NewHandlerError(fmt.Errorf("panic: %v", p))}
					}
					done <- r
				}()
				r.resp, r.err = next.Handle(ctx, req)
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					return nil, api.NewUnavailableError(api.CodeTimeout,
						fmt.Sprintf("request exceeded %s", d))
				}
				return nil, ctx.Err()
			}
		})
	}
}
