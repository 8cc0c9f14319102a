package api

import "context"

type contextKey int

const (
	requestKey contextKey = iota
	streamSinkKey
)

// ContextWithRequest stores the exchange request in ctx.
func ContextWithRequest(ctx context.Context, req *Request) context.Context {
	return context.WithValue(ctx, requestKey, req)
}

// RequestFromContext returns the exchange request stored in ctx, or nil.
func RequestFromContext(ctx context.Context) *Request {
	req, _ := ctx.Value(requestKey).(*Request)
	return req
}

// StreamSink delivers a partial response to the caller ahead of the
// terminal one. Transports that can stream install one per exchange.
type StreamSink func(resp *Response) error

// ContextWithStreamSink stores the stream sink of the exchange in ctx.
func ContextWithStreamSink(ctx context.Context, sink StreamSink) context.Context {
	return context.WithValue(ctx, streamSinkKey, sink)
}

// StreamSinkFromContext returns the stream sink stored in ctx, or nil.
func StreamSinkFromContext(ctx context.Context) StreamSink {
	sink, _ := ctx.Value(streamSinkKey).(StreamSink)
	return sink
}
