package auth

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/debug"
	"github.com/rhuss/duplex/pkg/transport"
)

// Middleware returns the auth interceptor. It runs chain against every
// exchange whose path is not in bypass and rejects failed attempts with an
// unauthenticated error. On success the identity is stored in the context
// and its roles and scopes are added to the caller tags.
func Middleware(chain *AuthChain, bypass []string, logger *slog.Logger) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	bypass = slices.Clone(bypass)

	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *api.Request) (*api.Response, error) {
			if slices.Contains(bypass, req.Path) {
				return next.Handle(ctx, req)
			}

			result := chain.Authenticate(ctx, req)
			if result.Decision != Yes || result.Identity == nil {
				logger.WarnContext(ctx, "authentication failed",
					"request_id", req.ID(),
					"path", req.Path,
					"remote_addr", req.RemoteAddr,
					"error", result.Err,
				)
				return nil, api.NewUnauthenticatedError("authentication required")
			}

			if result.Identity.Subject == "" {
				logger.ErrorContext(ctx, "authenticator returned identity with empty subject")
				return nil, api.NewHandlerError(errors.New("internal authentication error"))
			}

			debug.Log(debug.Auth, "authentication succeeded",
				"subject", result.Identity.Subject,
				"tags", result.Identity.TagSet().String(),
				"path", req.Path,
			)

			out := req.Clone()
			out.Tags = req.Tags.Union(result.Identity.TagSet())
			return next.Handle(ContextWithIdentity(ctx, result.Identity), out)
		})
	}
}
