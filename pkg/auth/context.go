package auth

import "context"

type identityKey struct{}

// ContextWithIdentity attaches the identity the auth interceptor resolved
// for the exchange.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity of the exchange, or nil when the
// auth interceptor is off or let the caller through anonymously.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// Subject names the caller of the exchange: the identity subject, or
// anonymous when there is none.
func Subject(ctx context.Context, anonymous string) string {
	if id := IdentityFromContext(ctx); id != nil && id.Subject != "" {
		return id.Subject
	}
	return anonymous
}
