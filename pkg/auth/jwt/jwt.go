// Package jwt provides a JWT/OIDC authenticator that validates bearer
// tokens against a JWKS (JSON Web Key Set) endpoint.
//
// The subject, service tier, roles and scopes of the identity are read from
// configurable claims. Roles and scopes become caller tags.
package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/auth"
	"github.com/rhuss/duplex/pkg/debug"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Issuer is the expected iss claim. Empty disables the check.
	Issuer string

	// Audience is the expected aud claim. Empty disables the check.
	Audience string

	// JWKSURL is the URL of the key set used for signature verification.
	JWKSURL string

	// SubjectClaim names the claim used as the identity subject. Default: "sub".
	SubjectClaim string

	// TierClaim names the claim holding the service tier. Default: "tier".
	TierClaim string

	// RolesClaim and ScopesClaim name claims whose values become caller
	// tags. A value may be a space-separated string or an array.
	// Defaults: "roles" and "scope".
	RolesClaim  string
	ScopesClaim string

	// CacheTTL controls how long JWKS keys are cached. Default: 1 hour.
	CacheTTL time.Duration

	// HTTPClient fetches the key set. Default: a client with a 10s timeout.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.SubjectClaim == "" {
		c.SubjectClaim = "sub"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.RolesClaim == "" {
		c.RolesClaim = "roles"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
}

// Authenticator validates JWT bearer tokens against a JWKS endpoint.
type Authenticator struct {
	config Config
	keys   *keyCache
	parser *jwtlib.Parser
}

// New creates a JWT authenticator with the given configuration.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwtlib.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		config: cfg,
		keys: &keyCache{
			keys:   map[string]*rsa.PublicKey{},
			ttl:    cfg.CacheTTL,
			url:    cfg.JWKSURL,
			client: cfg.HTTPClient,
		},
		parser: jwtlib.NewParser(opts...),
	}
}

// Authenticate validates the bearer token of req.
//
// Decision outcomes:
//   - Abstain: no authorization header or not a Bearer scheme
//   - No: bearer token present but invalid
//   - Yes: valid token with a populated identity
func (a *Authenticator) Authenticate(ctx context.Context, req *api.Request) auth.AuthResult {
	header := req.Header("authorization")
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return auth.AuthResult{Decision: auth.No, Err: errors.New("empty bearer token")}
	}

	claims := jwtlib.MapClaims{}
	_, err := a.parser.ParseWithClaims(tokenStr, claims, func(token *jwtlib.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return a.keys.get(ctx, kid)
	})
	if err != nil {
		debug.Log(debug.Auth, "JWT validation failed", "error", err)
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	subject := claimString(claims, a.config.SubjectClaim)
	if subject == "" {
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("JWT missing %q claim", a.config.SubjectClaim),
		}
	}

	identity := &auth.Identity{
		Subject:     subject,
		ServiceTier: claimString(claims, a.config.TierClaim),
		Roles:       claimList(claims, a.config.RolesClaim),
		Scopes:      claimList(claims, a.config.ScopesClaim),
		Metadata:    map[string]string{},
	}
	if iss := claimString(claims, "iss"); iss != "" {
		identity.Metadata["issuer"] = iss
	}

	return auth.AuthResult{Decision: auth.Yes, Identity: identity}
}

func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// claimList reads a claim that is either a space-separated string or an
// array of strings.
func claimList(claims jwtlib.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		parts := strings.Fields(v)
		if len(parts) == 0 {
			return nil
		}
		return parts
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// keyCache caches RSA public keys fetched from a JWKS endpoint. Concurrent
// misses share one fetch.
type keyCache struct {
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	ttl       time.Duration
	url       string
	client    *http.Client
	group     singleflight.Group
}

func (c *keyCache) lookup(kid string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[kid]
	return key, ok && time.Since(c.fetchedAt) < c.ttl
}

// get returns the key for kid, refreshing the set when the kid is unknown
// or the cache has expired.
func (c *keyCache) get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}

	_, err, _ := c.group.Do(c.url, func() (any, error) {
		if _, ok := c.lookup(kid); ok {
			return nil, nil
		}
		keys, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.keys = keys
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		debug.Log(debug.Auth, "JWKS cache refreshed", "keys", len(keys), "url", c.url)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	if key, ok := c.lookup(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("key %q not found in JWKS", kid)
}

func (c *keyCache) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating JWKS request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			slog.Warn("skipping JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

// jwk is a single JSON Web Key. N and E are base64url-encoded.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() > 1<<31-1 {
		return nil, errors.New("RSA exponent too large")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e.Int64())}, nil
}
