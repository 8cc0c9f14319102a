package api

import (
	"strings"

	"github.com/rhuss/duplex/pkg/wire"
)

// TransportKind names the wire transport an exchange arrived on.
type TransportKind string

const (
	TransportHTTP      TransportKind = "http"
	TransportWebSocket TransportKind = "websocket"
)

// HeaderCapabilities carries the capability set the caller declares, as a
// comma or space separated list.
const HeaderCapabilities = "x-capabilities"

// Request is one inbound exchange, normalized from either transport.
// Query and Data hold hydrated trees: typed tokens have already been
// replaced by their Go values.
type Request struct {
	id string

	Method string
	Path   string

	// Headers uses lower-case keys.
	Headers map[string]string
	Cookies map[string]string
	Query   map[string]any
	Data    any

	Transport TransportKind
	// Format is the container the exchange arrived in; responses are
	// serialized with it.
	Format wire.Format

	Tags         TagSet
	Capabilities TagSet

	RemoteAddr string
}

// NewRequest creates a request carrying correlation id. The id cannot be
// changed afterwards; an empty id is replaced by a generated one.
func NewRequest(id, method, path string) *Request {
	if id == "" {
		id = NewCorrelationID()
	}
	return &Request{
		id:      id,
		Method:  strings.ToUpper(method),
		Path:    path,
		Headers: map[string]string{},
		Cookies: map[string]string{},
		Query:   map[string]any{},
	}
}

// ID returns the correlation id of the exchange.
func (r *Request) ID() string { return r.id }

// Header returns the value of a header, case-insensitively.
func (r *Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// SetHeader stores a header under its lower-case name.
func (r *Request) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	r.Headers[strings.ToLower(name)] = value
}

// DeclareCapabilities adds the capabilities named in the x-capabilities
// header to the caller capability set. Transport adapters call it once the
// headers are in place.
func (r *Request) DeclareCapabilities() {
	if caps := r.Header(HeaderCapabilities); caps != "" {
		r.Capabilities = r.Capabilities.Union(ParseTagSet(caps))
	}
}

// Clone returns a copy an interceptor may mutate before calling the next
// handler. Maps are copied; Query and Data trees are shared.
func (r *Request) Clone() *Request {
	c := *r
	c.Headers = copyStrings(r.Headers)
	c.Cookies = copyStrings(r.Cookies)
	if r.Query != nil {
		c.Query = make(map[string]any, len(r.Query))
		for k, v := range r.Query {
			c.Query[k] = v
		}
	}
	if r.Tags != nil {
		c.Tags = r.Tags.Union(nil)
	}
	if r.Capabilities != nil {
		c.Capabilities = r.Capabilities.Union(nil)
	}
	return &c
}

// Params merges query parameters and a map-shaped data payload into one
// name to value map. Data entries win over query entries of the same name.
func (r *Request) Params() map[string]any {
	out := make(map[string]any, len(r.Query))
	for k, v := range r.Query {
		out[k] = v
	}
	if m, ok := r.Data.(map[string]any); ok {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func copyStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
