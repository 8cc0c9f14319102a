package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/debug"
	"github.com/rhuss/duplex/pkg/router"
	"github.com/rhuss/duplex/pkg/taskrunner"
	"github.com/rhuss/duplex/pkg/wire"
)

// ErrStreamingUnsupported is returned by Stream when the transport of the
// exchange cannot deliver partial responses.
var ErrStreamingUnsupported = errors.New("dispatch: transport does not support streaming")

// Dispatcher resolves requests against a router and invokes the bound
// endpoint. It is the innermost handler of the middleware chain.
type Dispatcher struct {
	router *router.Router
	strict bool
	runner *taskrunner.Runner
	logger *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStrictParams rejects parameters the endpoint does not declare.
func WithStrictParams(strict bool) Option {
	return func(d *Dispatcher) { d.strict = strict }
}

// WithTaskRunner makes runner available to endpoints through
// taskrunner.FromContext.
func WithTaskRunner(runner *taskrunner.Runner) Option {
	return func(d *Dispatcher) { d.runner = runner }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// New creates a Dispatcher over r.
func New(r *router.Router, opts ...Option) *Dispatcher {
	d := &Dispatcher{router: r, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle resolves, binds and invokes. Errors from resolution and binding
// are taxonomy errors; other errors raised by the endpoint are wrapped as
// handler errors with the cause kept.
func (d *Dispatcher) Handle(ctx context.Context, req *api.Request) (*api.Response, error) {
	route, err := d.router.Resolve(req.Path, req.Tags, req.Capabilities)
	if err != nil {
		return nil, err
	}

	args, err := Bind(route.Endpoint.Params, req.Params(), d.strict)
	if err != nil {
		return nil, err
	}

	ctx = api.ContextWithRequest(ctx, req)
	if d.runner != nil {
		ctx = taskrunner.WithRunner(ctx, d.runner)
	}

	debug.Log(debug.Dispatch, "invoke", "route", route.Path, "request_id", req.ID())
	result, err := route.Endpoint.Call(ctx, args)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) || errors.Is(err, context.DeadlineExceeded) {
			return nil, api.AsError(err)
		}
		return nil, api.NewHandlerError(fmt.Errorf("%s: %w", route.Path, err))
	}

	resp, err := Result(result, formatOf(req))
	if err != nil {
		return nil, api.NewHandlerError(fmt.Errorf("%s: %w", route.Path, err))
	}
	return resp, nil
}

// Result normalizes an endpoint result into a response serialized with f.
// Sequences and maps are encoded through the type codec, text and raw bytes
// pass through, nil yields an empty body and any other value is rendered as
// its canonical text. Inside sequences and maps, values the codec cannot
// carry are rendered as canonical text too. A *api.Response is used as is
// with its data encoded.
func Result(v any, f wire.Format) (*api.Response, error) {
	if resp, ok := v.(*api.Response); ok {
		data, err := coerceData(resp.Data, f)
		if err != nil {
			return nil, err
		}
		out := *resp
		out.Data = data
		if out.Status == 0 {
			out.Status = http.StatusOK
		}
		if out.Headers == nil {
			out.Headers = map[string]string{}
		}
		return &out, nil
	}
	data, err := coerceData(v, f)
	if err != nil {
		return nil, err
	}
	return api.OK(data), nil
}

func coerceData(v any, f wire.Format) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return x, nil
	case []byte:
		return x, nil
	case []any, map[string]any:
		return encodeTree(x, f)
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return encodeTree(v, f)
	case reflect.Pointer:
		rv := reflect.ValueOf(v)
		if rv.IsNil() {
			return nil, nil
		}
		if k := rv.Elem().Kind(); k == reflect.Slice || k == reflect.Map || k == reflect.Array {
			return encodeTree(v, f)
		}
	}
	return canonicalText(v), nil
}

// encodeTree encodes a container through the type codec. Leaves the codec
// has no representation for, such as structs, are rendered as their
// canonical text in place.
func encodeTree(v any, f wire.Format) (any, error) {
	enc, err := wire.Encode(v, f)
	var encErr *wire.EncodeError
	if !errors.As(err, &encErr) {
		return enc, err
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return encodeTree(rv.Elem().Interface(), f)
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			item, err := encodeTree(rv.Index(i).Interface(), f)
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			item, err := encodeTree(iter.Value().Interface(), f)
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = item
		}
		return out, nil
	}
	return canonicalText(v), nil
}

func canonicalText(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}

// Stream sends data to the caller as a partial response ahead of the
// endpoint's terminal result. It is only valid inside an endpoint invoked
// by a Dispatcher whose transport installed a stream sink. Partial
// responses skip the post-processing of the middleware chain.
func Stream(ctx context.Context, data any) error {
	sink := api.StreamSinkFromContext(ctx)
	if sink == nil {
		return ErrStreamingUnsupported
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tree, err := coerceData(data, formatOf(api.RequestFromContext(ctx)))
	if err != nil {
		return err
	}
	return sink(&api.Response{Status: http.StatusOK, Headers: map[string]string{}, Data: tree, Stream: true})
}

func formatOf(req *api.Request) wire.Format {
	if req == nil || req.Format == nil {
		return wire.JSON
	}
	return req.Format
}
