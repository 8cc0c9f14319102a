package auth

import (
	"log/slog"

	"github.com/rhuss/duplex/pkg/transport"
)

// Ranks of the interceptors contributed by this package.
const (
	RankAuth      = 100
	RankRateLimit = 110
)

// DefaultRequestsPerMinute is the ratelimit budget of tiers without an
// explicit configuration.
const DefaultRequestsPerMinute = 600

// Register adds the auth and ratelimit interceptors to c. The auth
// interceptor is on by default and authenticates with chain; its
// "bypass" field lists paths that skip authentication. The ratelimit
// interceptor is off by default. Its "requests_per_minute" and "burst"
// fields configure tiers missing from tiers.
func Register(c *transport.Catalog, chain *AuthChain, tiers map[string]TierConfig) error {
	defs := []transport.Definition{
		{
			Name:           "auth",
			Rank:           RankAuth,
			DefaultEnabled: true,
			Defaults:       transport.Fields{"bypass": []string{}},
			New: func(f transport.Fields, logger *slog.Logger) (transport.Middleware, error) {
				return Middleware(chain, f.Strings("bypass", nil), logger), nil
			},
		},
		{
			Name:     "ratelimit",
			Rank:     RankRateLimit,
			Defaults: transport.Fields{"requests_per_minute": DefaultRequestsPerMinute, "burst": 0},
			New: func(f transport.Fields, logger *slog.Logger) (transport.Middleware, error) {
				fallback := TierConfig{
					RequestsPerMinute: f.Int("requests_per_minute", DefaultRequestsPerMinute),
					Burst:             f.Int("burst", 0),
				}
				return RateLimit(NewTokenBucketLimiter(tiers, fallback), logger), nil
			},
		},
	}
	for _, def := range defs {
		if err := c.Register(def); err != nil {
			return err
		}
	}
	return nil
}
