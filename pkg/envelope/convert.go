package envelope

import (
	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/wire"
)

// Request converts a request message into an exchange request that arrived
// on the persistent transport in format f.
func (m *Message) Request(f wire.Format, remoteAddr string) *api.Request {
	req := api.NewRequest(m.ID, m.Method, m.Path)
	for k, v := range m.Headers {
		req.SetHeader(k, v)
	}
	for k, v := range m.Cookies {
		req.Cookies[k] = v
	}
	for k, v := range m.Query {
		req.Query[k] = v
	}
	req.Data = m.Data
	req.Transport = api.TransportWebSocket
	req.Format = f
	req.RemoteAddr = remoteAddr
	return req
}

// Response converts a response message into an exchange response.
func (m *Message) Response() *api.Response {
	resp := api.NewResponse(m.Status, m.Data)
	for k, v := range m.Headers {
		resp.SetHeader(k, v)
	}
	resp.Cookies = m.SetCookies
	resp.Stream = m.Stream
	return resp
}

// FromRequest builds the request message for req.
func FromRequest(req *api.Request) *Message {
	return &Message{
		ID:      req.ID(),
		Method:  req.Method,
		Path:    req.Path,
		Headers: req.Headers,
		Cookies: req.Cookies,
		Query:   req.Query,
		Data:    req.Data,
	}
}

// FromResponse builds the response message answering correlation id.
func FromResponse(id string, resp *api.Response) *Message {
	return &Message{
		ID:         id,
		Status:     resp.Status,
		Stream:     resp.Stream,
		Headers:    resp.Headers,
		SetCookies: resp.Cookies,
		Data:       resp.Data,
	}
}
