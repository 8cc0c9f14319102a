package observability

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/rhuss/duplex/pkg/transport"
)

// Ranks of the interceptors contributed by this package.
const (
	RankMetrics = 30
	RankTracing = 40
)

// Register adds the metrics interceptor (on by default) and the tracing
// interceptor (off by default) to c. A nil tp selects the global tracer
// provider at build time.
func Register(c *transport.Catalog, tp trace.TracerProvider) error {
	defs := []transport.Definition{
		{
			Name:           "metrics",
			Rank:           RankMetrics,
			DefaultEnabled: true,
			New: func(transport.Fields, *slog.Logger) (transport.Middleware, error) {
				return Metrics(), nil
			},
		},
		{
			Name: "tracing",
			Rank: RankTracing,
			New: func(transport.Fields, *slog.Logger) (transport.Middleware, error) {
				return Tracing(tp), nil
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
