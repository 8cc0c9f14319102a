package storage

import "context"

// ownerKey is a private type for the owner context key.
type ownerKey struct{}

// SetOwner scopes storage operations in ctx to owner.
func SetOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// GetOwner extracts the owner from the context. An empty string means
// unscoped access, used for administrative reads.
func GetOwner(ctx context.Context) string {
	if v, ok := ctx.Value(ownerKey{}).(string); ok {
		return v
	}
	return ""
}
