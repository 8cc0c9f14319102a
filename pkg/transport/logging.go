package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/duplex/pkg/api"
)

// Logging returns middleware that emits structured log entries for each
// exchange. The entry includes method, path, transport, status, duration
// and the request ID. Failed exchanges are logged at error level when the
// status is 500 or above, and at warn level otherwise.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *api.Request) (*api.Response, error) {
			start := time.Now()

			resp, err := next.Handle(ctx, req)

			status := api.StatusFromError(err)
			if err == nil && resp != nil {
				status = resp.Status
			}
			attrs := []slog.Attr{
				slog.String("request_id", req.ID()),
				slog.String("method", req.Method),
				slog.String("path", req.Path),
				slog.String("transport", string(req.Transport)),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}

			switch {
			case status >= 500:
				logger.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
			case status >= 400:
				logger.LogAttrs(ctx, slog.LevelWarn, "request rejected", attrs...)
			default:
				logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
			}

			return resp, err
		})
	}
}
