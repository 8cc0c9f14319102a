package api

import (
	"net/http"
	"strings"
)

// Cookie is a cookie directive attached to a response.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Path     string `json:"path,omitempty"`
	Domain   string `json:"domain,omitempty"`
	MaxAge   int    `json:"max_age,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"http_only,omitempty"`
}

// Response is the outcome of one exchange. Data holds an encoded tree, a
// string, or raw bytes. Stream marks a partial response that will be
// followed by more responses for the same exchange.
type Response struct {
	Status  int
	Headers map[string]string
	Cookies []Cookie
	Data    any
	Stream  bool
}

// NewResponse creates a response with the given status and payload.
func NewResponse(status int, data any) *Response {
	return &Response{Status: status, Headers: map[string]string{}, Data: data}
}

// OK creates a 200 response.
func OK(data any) *Response {
	return NewResponse(http.StatusOK, data)
}

// Header returns the value of a header, case-insensitively.
func (r *Response) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// SetHeader stores a header under its lower-case name.
func (r *Response) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	r.Headers[strings.ToLower(name)] = value
}

// SetCookie appends a cookie directive.
func (r *Response) SetCookie(c Cookie) {
	r.Cookies = append(r.Cookies, c)
}

// Terminal reports whether the response ends its exchange.
func (r *Response) Terminal() bool { return !r.Stream }

// Kind returns the message kind used for exchange phase tracking.
func (r *Response) Kind() MessageKind {
	if r.Stream {
		return MessagePartial
	}
	return MessageTerminal
}
