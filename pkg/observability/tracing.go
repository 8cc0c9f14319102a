package observability

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/transport"
)

// DefaultTracerName names the tracer used when none is configured.
const DefaultTracerName = "github.com/rhuss/duplex"

// Tracing returns the tracing interceptor. It continues a W3C trace
// carried in the exchange headers and opens a server span per exchange.
// Spans of exchanges failing with a 5xx status are marked as errors;
// 4xx outcomes are client issues and keep an unset status.
func Tracing(tp trace.TracerProvider) transport.Middleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(DefaultTracerName)

	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *api.Request) (*api.Response, error) {
			ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(req.Headers))

			ctx, span := tracer.Start(ctx, req.Method+" /"+transport.Namespace(req.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("duplex.request_id", req.ID()),
					attribute.String("duplex.transport", string(req.Transport)),
					attribute.String("duplex.path", req.Path),
				),
			)
			defer span.End()

			resp, err := next.Handle(ctx, req)

			status := api.StatusFromError(err)
			if resp != nil && err == nil {
				status = resp.Status
			}
			span.SetAttributes(attribute.Int("duplex.status", status))
			if status >= 500 {
				if err != nil {
					span.RecordError(err)
				}
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			return resp, err
		})
	}
}
