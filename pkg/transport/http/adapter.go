package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/debug"
	"github.com/rhuss/duplex/pkg/router"
	"github.com/rhuss/duplex/pkg/transport"
	"github.com/rhuss/duplex/pkg/wire"
)

// RouteLister enumerates registered routes. *router.Router implements it.
type RouteLister interface {
	Walk(fn func(router.RouteInfo) error) error
}

// Adapter serves the dispatch pipeline over HTTP. Every method and path
// under Prefix becomes one exchange; a few operational endpoints are
// served next to it.
type Adapter struct {
	handler  transport.Handler
	inflight *transport.InFlightRegistry
	routes   RouteLister
	mux      *chi.Mux
	config   Config
	logger   *slog.Logger
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	// Prefix is stripped from the URL path before routing.
	Prefix      string
	MaxBodySize int64
	Validation  api.ValidationConfig
	// ExposeRoutes serves the route listing even when router debugging
	// is off.
	ExposeRoutes bool
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 10 << 20, // 10 MB
		Validation:  api.DefaultValidationConfig(),
	}
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithRoutes enables the route listing endpoint backed by l.
func WithRoutes(l RouteLister) Option {
	return func(a *Adapter) { a.routes = l }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *Adapter) { a.mux.Method(http.MethodGet, "/metrics", h) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter creates an HTTP adapter in front of handler, usually a
// transport.Pipeline.
func NewAdapter(handler transport.Handler, cfg Config, opts ...Option) *Adapter {
	cfg.Prefix = strings.TrimRight(cfg.Prefix, "/")
	a := &Adapter{
		handler:  handler,
		inflight: transport.NewInFlightRegistry(),
		mux:      chi.NewRouter(),
		config:   cfg,
		logger:   slog.Default(),
	}

	a.mux.Get("/healthz", a.handleHealth)
	a.mux.Get("/_routes", a.handleRoutes)
	a.mux.Delete("/_inflight/{id}", a.handleCancel)
	for _, opt := range opts {
		opt(a)
	}
	a.mux.Handle(cfg.Prefix+"/*", http.HandlerFunc(a.handleExchange))

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest.
func (a *Adapter) Handler() http.Handler {
	return a.mux
}

// Mount serves h under pattern next to the exchange routes, for example a
// WebSocket endpoint. It must be called before the adapter serves traffic.
func (a *Adapter) Mount(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// InFlight returns the number of exchanges currently being handled.
func (a *Adapter) InFlight() int {
	return a.inflight.Len()
}

// handleExchange normalizes one HTTP request, runs it through the handler
// and writes the result, either as one body or as server-sent events when
// the handler streams.
func (a *Adapter) handleExchange(w http.ResponseWriter, r *http.Request) {
	if a.config.MaxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	}

	req, err := a.buildRequest(r)
	if err == nil {
		if verr := api.ValidateRequest(req, a.config.Validation); verr != nil {
			err = verr
		}
	}
	if err != nil {
		resp := transport.ErrorResponse(err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			resp.Status = http.StatusRequestEntityTooLarge
		}
		debug.Log(debug.Transport, "request rejected before dispatch",
			"request_id", req.ID(), "path", req.Path, "error", err.Error())
		writeResponse(w, resp, req.Format, req.ID())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if a.inflight.Register(req.ID(), cancel) {
		defer a.inflight.Remove(req.ID())
	}

	events := newSSEWriter(w, req.ID())
	ctx = api.ContextWithStreamSink(ctx, events.Send)

	resp, err := a.handler.Handle(ctx, req)
	if err != nil {
		resp = transport.ErrorResponse(err)
	}
	if resp == nil {
		resp = api.NewResponse(http.StatusNoContent, nil)
	}

	if events.started() {
		terminal := *resp
		terminal.Stream = false
		if err := events.Send(&terminal); err != nil {
			a.logger.Debug("terminal event not delivered",
				"request_id", req.ID(), "error", err.Error())
		}
		return
	}
	writeResponse(w, resp, req.Format, req.ID())
}

// buildRequest converts r into the abstract request. The returned request
// is never nil so that rejections can still be correlated.
func (a *Adapter) buildRequest(r *http.Request) (*api.Request, error) {
	id := r.Header.Get("X-Request-ID")
	if !api.ValidateCorrelationID(id) {
		id = ""
	}
	path := strings.TrimPrefix(r.URL.Path, a.config.Prefix)
	req := api.NewRequest(id, r.Method, path)
	req.Transport = api.TransportHTTP
	req.RemoteAddr = r.RemoteAddr
	req.Format = wire.JSON

	for name, values := range r.Header {
		req.SetHeader(name, strings.Join(values, ", "))
	}
	for _, c := range r.Cookies() {
		req.Cookies[c.Name] = c.Value
	}
	req.DeclareCapabilities()

	query, err := wire.Decode(wire.FromValues(r.URL.Query()))
	if err != nil {
		return req, api.AsError(err)
	}
	if m, ok := query.(map[string]any); ok {
		req.Query = m
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return req, api.NewDecodeError("request body could not be read", err)
	}

	var in wire.Format
	if len(body) > 0 {
		in = wire.JSON
		if ct := r.Header.Get("Content-Type"); ct != "" {
			f, ok := wire.ForContentType(ct)
			if !ok {
				return req, api.NewDecodeError(fmt.Sprintf("unsupported content type %q", ct), nil)
			}
			in = f
		}
		data, err := wire.Unmarshal(in, body)
		if err != nil {
			return req, api.AsError(err)
		}
		req.Data = data
	}
	req.Format = negotiate(r.Header.Get("Accept"), in)
	return req, nil
}

// handleHealth handles GET /healthz.
func (a *Adapter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"in_flight": a.inflight.Len(),
	})
}

// handleRoutes handles GET /_routes. The listing is only served while
// router debugging or ExposeRoutes is on.
func (a *Adapter) handleRoutes(w http.ResponseWriter, _ *http.Request) {
	if a.routes == nil || !(a.config.ExposeRoutes || debug.Enabled(debug.Router)) {
		writeResponse(w, transport.ErrorResponse(api.NewNotFoundError("no route for \"/_routes\"")), wire.JSON, "")
		return
	}
	routes := []router.RouteInfo{}
	if err := a.routes.Walk(func(ri router.RouteInfo) error {
		routes = append(routes, ri)
		return nil
	}); err != nil {
		writeResponse(w, transport.ErrorResponse(err), wire.JSON, "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"routes": routes})
}

// handleCancel handles DELETE /_inflight/{id}. It cancels the context of
// an exchange that is still running, typically a long stream.
func (a *Adapter) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !api.ValidateCorrelationID(id) {
		writeResponse(w, transport.ErrorResponse(api.NewValidationError("id", "malformed correlation id")), wire.JSON, "")
		return
	}
	if !a.inflight.Cancel(id) {
		writeResponse(w, transport.ErrorResponse(api.NewNotFoundError("no exchange "+id+" in flight")), wire.JSON, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeResponse serializes resp with f. Raw bytes and strings are written
// as they are; explicit content headers on resp take precedence.
func writeResponse(w http.ResponseWriter, resp *api.Response, f wire.Format, id string) {
	h := w.Header()
	for name, value := range resp.Headers {
		h.Set(name, value)
	}
	for _, c := range resp.Cookies {
		http.SetCookie(w, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			MaxAge:   c.MaxAge,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	if id != "" && h.Get("X-Request-ID") == "" {
		h.Set("X-Request-ID", id)
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}

	body, contentType, err := encodeBody(resp.Data, f)
	if err != nil {
		body, contentType, _ = encodeBody(transport.ErrorResponse(api.NewHandlerError(err)).Data, wire.JSON)
		status = http.StatusInternalServerError
		h.Del("Content-Encoding")
		h.Del("Content-Type")
	}
	if body == nil {
		w.WriteHeader(status)
		return
	}
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", contentType)
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	w.Write(body)
}

func encodeBody(data any, f wire.Format) ([]byte, string, error) {
	switch x := data.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return x, "application/octet-stream", nil
	case string:
		return []byte(x), "text/plain; charset=utf-8", nil
	}
	if f == nil || f == wire.Form {
		f = wire.JSON
	}
	body, err := wire.Marshal(f, data)
	if err != nil {
		return nil, "", err
	}
	return body, f.ContentType(), nil
}
