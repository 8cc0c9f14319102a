package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/transport"
)

// Metrics returns the metrics interceptor.
//
// It records:
//   - duplex_exchanges_total (counter): per exchange, by transport, namespace and status class
//   - duplex_exchange_duration_seconds (histogram): by transport and namespace
//   - duplex_exchanges_in_flight (gauge): while the exchange is handled
//   - duplex_partial_responses_total (counter): per partial response passed to the stream sink
func Metrics() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *api.Request) (*api.Response, error) {
			start := time.Now()
			kind := string(req.Transport)
			ns := transport.Namespace(req.Path)

			inFlight := ExchangesInFlight.WithLabelValues(kind)
			inFlight.Inc()
			defer inFlight.Dec()

			if sink := api.StreamSinkFromContext(ctx); sink != nil {
				partials := PartialsTotal.WithLabelValues(kind)
				ctx = api.ContextWithStreamSink(ctx, func(resp *api.Response) error {
					if err := sink(resp); err != nil {
						return err
					}
					partials.Inc()
					return nil
				})
			}

			resp, err := next.Handle(ctx, req)

			status := api.StatusFromError(err)
			if resp != nil && err == nil {
				status = resp.Status
			}
			ExchangesTotal.WithLabelValues(kind, ns, strconv.Itoa(status/100)+"xx").Inc()
			ExchangeDuration.WithLabelValues(kind, ns).Observe(time.Since(start).Seconds())

			return resp, err
		})
	}
}
