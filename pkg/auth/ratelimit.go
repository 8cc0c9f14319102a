package auth

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/transport"
)

// RateLimiter checks whether an exchange should be allowed for identity.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig holds rate limit settings for a service tier. A zero or
// negative RequestsPerMinute disables limiting for the tier. Burst
// defaults to RequestsPerMinute/10, at least one.
type TierConfig struct {
	RequestsPerMinute int
	Burst             int
}

func (tc TierConfig) limiter() *rate.Limiter {
	burst := tc.Burst
	if burst <= 0 {
		burst = max(tc.RequestsPerMinute/10, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(tc.RequestsPerMinute)/60), burst)
}

// TokenBucketLimiter keeps one token bucket per subject and tier.
type TokenBucketLimiter struct {
	tiers    map[string]TierConfig
	fallback TierConfig

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewTokenBucketLimiter creates a limiter with per-tier configuration.
// Tiers missing from tiers use fallback.
func NewTokenBucketLimiter(tiers map[string]TierConfig, fallback TierConfig) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		tiers:    tiers,
		fallback: fallback,
		buckets:  make(map[string]*rate.Limiter),
	}
}

// Allow takes one token from the bucket of identity. It returns
// ErrTooManyRequests when the bucket is empty.
func (l *TokenBucketLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.Tier()
	tc, ok := l.tiers[tier]
	if !ok {
		tc = l.fallback
	}
	if tc.RequestsPerMinute <= 0 {
		return nil
	}

	key := identity.Subject + ":" + tier

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = tc.limiter()
		l.buckets[key] = b
	}
	l.mu.Unlock()

	if !b.Allow() {
		return ErrTooManyRequests
	}
	return nil
}

// RateLimit returns the ratelimit interceptor. It limits by the identity
// the auth interceptor stored in the context; exchanges without one are
// limited per remote address.
func RateLimit(limiter RateLimiter, logger *slog.Logger) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *api.Request) (*api.Response, error) {
			identity := IdentityFromContext(ctx)
			if identity == nil {
				identity = &Identity{Subject: "addr:" + req.RemoteAddr}
			}
			if err := limiter.Allow(ctx, identity); err != nil {
				logger.WarnContext(ctx, "rate limit exceeded",
					"request_id", req.ID(),
					"subject", identity.Subject,
					"tier", identity.Tier(),
				)
				return nil, api.NewUnavailableError(api.CodeRateLimited, "rate limit exceeded")
			}
			return next.Handle(ctx, req)
		})
	}
}
