package auth

import (
	"context"
	"errors"

	"github.com/rhuss/duplex/pkg/api"
)

// AuthDecision represents the three possible outcomes of authentication.
type AuthDecision int

const (
	// Yes means credentials are valid. The chain stops and the identity is used.
	Yes AuthDecision = iota

	// No means credentials are present but invalid. The chain stops and the
	// exchange is rejected.
	No

	// Abstain means this authenticator cannot handle the credentials type.
	// The chain continues to the next authenticator.
	Abstain
)

// String returns the decision name used in logs.
func (d AuthDecision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "abstain"
	}
}

// AuthResult carries the outcome of an authentication attempt.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // populated only when Decision == Yes
	Err      error     // populated only when Decision == No
}

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the unique identifier (required, non-empty).
	Subject string

	// ServiceTier selects the rate limit bucket.
	ServiceTier string

	// Roles and Scopes both become caller tags for route authorization.
	Roles  []string
	Scopes []string

	// Metadata carries auth-provider-specific data.
	Metadata map[string]string
}

// TagSet returns the caller tags the router evaluates authorization
// expressions against: every role and every scope.
func (id *Identity) TagSet() api.TagSet {
	if id == nil {
		return api.NewTagSet()
	}
	return api.NewTagSet(id.Roles...).Union(api.NewTagSet(id.Scopes...))
}

// Tier returns the service tier, or "default" when unset.
func (id *Identity) Tier() string {
	if id == nil || id.ServiceTier == "" {
		return "default"
	}
	return id.ServiceTier
}

// Authenticator examines exchange credentials and returns a three-outcome vote.
type Authenticator interface {
	Authenticate(ctx context.Context, req *api.Request) AuthResult
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthChain evaluates authenticators in order using three-outcome voting.
type AuthChain struct {
	// Authenticators are evaluated left to right.
	Authenticators []Authenticator

	// DefaultDecision is used when all authenticators abstain.
	// Use Yes for development (NoOp behavior) or No for production.
	DefaultDecision AuthDecision
}

// Authenticate runs the chain. Stops on the first Yes or No.
// If all abstain, returns the default decision.
func (c *AuthChain) Authenticate(ctx context.Context, req *api.Request) AuthResult {
	for _, authn := range c.Authenticators {
		result := authn.Authenticate(ctx, req)
		if result.Decision != Abstain {
			return result
		}
	}

	// All abstained: use default.
	if c.DefaultDecision == Yes {
		return AuthResult{
			Decision: Yes,
			Identity: &Identity{Subject: "anonymous", ServiceTier: "default"},
		}
	}

	return AuthResult{
		Decision: No,
		Err:      ErrUnauthenticated,
	}
}
