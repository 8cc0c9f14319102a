// Package apikey provides an API key authenticator that validates keys
// against a static store using SHA-256 hashing and constant-time comparison.
//
// A key is accepted from an "Authorization: Bearer <key>" header or from an
// "X-API-Key" header. The bearer form wins when both are present.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"slices"
	"strings"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/auth"
)

// HeaderAPIKey is the alternative header carrying a raw key.
const HeaderAPIKey = "x-api-key"

// KeyEntry maps a key hash to an identity.
type KeyEntry struct {
	KeyHash  [32]byte
	Identity auth.Identity
}

// RawKeyEntry is the configuration format for API keys.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

// Authenticator validates API keys against a static key store.
type Authenticator struct {
	keys []KeyEntry
}

// New creates an API key authenticator from a list of raw keys and identities.
// Keys are hashed immediately; plaintext keys are not stored.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{keys: make([]KeyEntry, 0, len(entries))}
	for _, e := range entries {
		a.keys = append(a.keys, KeyEntry{
			KeyHash:  sha256.Sum256([]byte(e.Key)),
			Identity: e.Identity,
		})
	}
	return a
}

// Authenticate extracts the key and validates it.
// Returns Yes if valid, No if a key is present but unknown,
// Abstain if the exchange carries no key this authenticator understands.
func (a *Authenticator) Authenticate(_ context.Context, req *api.Request) auth.AuthResult {
	key, ok := extractKey(req)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if key == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	keyHash := sha256.Sum256([]byte(key))

	// Compare against every entry so the timing does not depend on the
	// position of the match.
	var found *KeyEntry
	for i := range a.keys {
		if subtle.ConstantTimeCompare(keyHash[:], a.keys[i].KeyHash[:]) == 1 {
			found = &a.keys[i]
		}
	}
	if found == nil {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	id := found.Identity
	id.Roles = slices.Clone(id.Roles)
	id.Scopes = slices.Clone(id.Scopes)
	return auth.AuthResult{Decision: auth.Yes, Identity: &id}
}

func extractKey(req *api.Request) (string, bool) {
	if header := req.Header("authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return "", false
		}
		return strings.TrimSpace(token), true
	}
	if key := req.Header(HeaderAPIKey); key != "" {
		return strings.TrimSpace(key), true
	}
	return "", false
}
