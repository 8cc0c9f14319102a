package transport

import (
	"log/slog"

	"github.com/klauspost/compress/gzip"
)

// Ranks of the built-in interceptors. Lower ranks wrap higher ones.
const (
	RankErrors      = 0
	RankCorrelation = 10
	RankLogging     = 20
	RankTimeout     = 50
	RankCompression = 300
)

// RegisterBuiltins adds the transport-level interceptors to c: errors,
// correlation, logging, timeout and compression. Interceptors owned by
// other packages (auth, metrics, tracing) register themselves.
func RegisterBuiltins(c *Catalog) error {
	defs := []Definition{
		{
			Name:           "errors",
			Rank:           RankErrors,
			DefaultEnabled: true,
			New: func(_ Fields, logger *slog.Logger) (Middleware, error) {
				return Errors(logger), nil
			},
		},
		{
			Name:           "correlation",
			Rank:           RankCorrelation,
			DefaultEnabled: true,
			New: func(Fields, *slog.Logger) (Middleware, error) {
				return RequestID(), nil
			},
		},
		{
			Name:           "logging",
			Rank:           RankLogging,
			DefaultEnabled: true,
			New: func(_ Fields, logger *slog.Logger) (Middleware, error) {
				return Logging(logger), nil
			},
		},
		{
			Name:     "timeout",
			Rank:     RankTimeout,
			Defaults: Fields{"duration": "30s"},
			New: func(f Fields, _ *slog.Logger) (Middleware, error) {
				return Timeout(f.Duration("duration", defaultTimeout)), nil
			},
		},
		{
			Name:     "compression",
			Rank:     RankCompression,
			Defaults: Fields{"minimum_size": DefaultMinimumSize, "level": gzip.DefaultCompression},
			New: func(f Fields, _ *slog.Logger) (Middleware, error) {
				return Compression(f.Int("minimum_size", DefaultMinimumSize), f.Int("level", gzip.DefaultCompression)), nil
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
