package observability

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/transport"
)

func newRecorder(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })
	return rec, tp
}

func TestTracingSpanPerExchange(t *testing.T) {
	tests := []struct {
		name       string
		handle     transport.HandlerFunc
		wantStatus codes.Code
		wantEvents int
	}{
		{
			name: "success",
			handle: func(context.Context, *api.Request) (*api.Response, error) {
				return api.NewResponse(http.StatusOK, nil), nil
			},
			wantStatus: codes.Unset,
		},
		{
			name: "client error keeps unset status",
			handle: func(context.Context, *api.Request) (*api.Response, error) {
				return nil, api.NewAuthorizationError("nope")
			},
			wantStatus: codes.Unset,
		},
		{
			name: "server error",
			handle: func(context.Context, *api.Request) (*api.Response, error) {
				return nil, errors.New("boom")
			},
			wantStatus: codes.Error,
			wantEvents: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, tp := newRecorder(t)
			h := Tracing(tp)(tt.handle)

			req := api.NewRequest("req-1", "POST", "/shop/orders/create")
			req.Transport = api.TransportHTTP
			h.Handle(context.Background(), req)

			spans := rec.Ended()
			if len(spans) != 1 {
				t.Fatalf("ended spans = %d, want 1", len(spans))
			}
			span := spans[0]
			if span.Name() != "POST /shop" {
				t.Errorf("span name = %q, want \"POST /shop\"", span.Name())
			}
			if span.SpanKind() != trace.SpanKindServer {
				t.Errorf("span kind = %v, want server", span.SpanKind())
			}
			if span.Status().Code != tt.wantStatus {
				t.Errorf("span status = %v, want %v", span.Status().Code, tt.wantStatus)
			}
			if len(span.Events()) != tt.wantEvents {
				t.Errorf("span events = %d, want %d", len(span.Events()), tt.wantEvents)
			}
			attrs := map[string]string{}
			for _, kv := range span.Attributes() {
				attrs[string(kv.Key)] = kv.Value.Emit()
			}
			if attrs["duplex.request_id"] != "req-1" || attrs["duplex.transport"] != "http" {
				t.Errorf("attributes = %v", attrs)
			}
		})
	}
}

func TestTracingContinuesRemoteTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	rec, tp := newRecorder(t)

	var inner trace.SpanContext
	h := Tracing(tp)(transport.HandlerFunc(func(ctx context.Context, _ *api.Request) (*api.Response, error) {
		inner = trace.SpanContextFromContext(ctx)
		return api.NewResponse(http.StatusOK, nil), nil
	}))

	req := api.NewRequest("", "GET", "/shop/list")
	req.SetHeader("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.Handle(context.Background(), req)

	if got := inner.TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s, want the remote trace", got)
	}
	span := rec.Ended()[0]
	if got := span.Parent().SpanID().String(); got != "00f067aa0ba902b7" {
		t.Errorf("parent span id = %s, want the remote span", got)
	}
}

func TestRegister(t *testing.T) {
	c := transport.NewCatalog()
	_, tp := newRecorder(t)
	if err := Register(c, tp); err != nil {
		t.Fatal(err)
	}

	descs, err := c.Descriptors(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 2 {
		t.Fatalf("descriptors = %v", descs)
	}
	if d := descs[0]; d.Name != "metrics" || d.Rank != RankMetrics || !d.Enabled {
		t.Errorf("descs[0] = %+v, want metrics enabled at rank %d", d, RankMetrics)
	}
	if d := descs[1]; d.Name != "tracing" || d.Rank != RankTracing || d.Enabled {
		t.Errorf("descs[1] = %+v, want tracing disabled at rank %d", d, RankTracing)
	}
}
