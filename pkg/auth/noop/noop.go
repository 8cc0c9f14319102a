// Package noop provides a no-op authenticator that accepts every exchange.
// Used for development and as a default voter in the auth chain.
package noop

import (
	"context"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/auth"
)

// Authenticator always returns Yes. The identity carries the configured
// roles, which lets a development server exercise tagged routes.
type Authenticator struct {
	Roles []string
}

func (a *Authenticator) Authenticate(_ context.Context, _ *api.Request) auth.AuthResult {
	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:     "anonymous",
			ServiceTier: "default",
			Roles:       append([]string(nil), a.Roles...),
		},
	}
}
