package api

import (
	"net/http"
	"testing"
)

func TestNewRequest(t *testing.T) {
	req := NewRequest("abc", "post", "/x")
	if req.ID() != "abc" {
		t.Errorf("ID() = %q, want abc", req.ID())
	}
	if req.Method != "POST" {
		t.Errorf("Method = %q, want POST", req.Method)
	}

	generated := NewRequest("", "GET", "/")
	if !ValidateCorrelationID(generated.ID()) {
		t.Errorf("generated id %q is not valid", generated.ID())
	}
}

func TestRequestHeaders(t *testing.T) {
	req := NewRequest("1", "GET", "/")
	req.SetHeader("X-Request-ID", "r1")
	if got := req.Header("x-request-id"); got != "r1" {
		t.Errorf("Header = %q, want r1", got)
	}
	if _, ok := req.Headers["x-request-id"]; !ok {
		t.Error("header key not lower-cased")
	}
}

func TestRequestCloneKeepsID(t *testing.T) {
	req := NewRequest("abc", "GET", "/x")
	req.SetHeader("a", "1")
	req.Tags = NewTagSet("user")

	c := req.Clone()
	c.SetHeader("a", "2")
	c.Tags["admin"] = struct{}{}

	if c.ID() != "abc" {
		t.Errorf("clone ID = %q, want abc", c.ID())
	}
	if req.Header("a") != "1" {
		t.Error("clone shares header map with original")
	}
	if req.Tags.Has("admin") {
		t.Error("clone shares tag set with original")
	}
}

func TestRequestParams(t *testing.T) {
	req := NewRequest("1", "POST", "/x")
	req.Query = map[string]any{"n": "1", "q": "shoes"}
	req.Data = map[string]any{"n": int64(5)}

	p := req.Params()
	if p["n"] != int64(5) {
		t.Errorf("n = %#v, want data value int64(5)", p["n"])
	}
	if p["q"] != "shoes" {
		t.Errorf("q = %#v, want shoes", p["q"])
	}

	req.Data = "not a map"
	if got := req.Params()["n"]; got != "1" {
		t.Errorf("n = %#v, want query value", got)
	}
}

func TestResponseKind(t *testing.T) {
	resp := OK("x")
	if resp.Status != http.StatusOK || !resp.Terminal() || resp.Kind() != MessageTerminal {
		t.Errorf("OK response = %+v", resp)
	}
	resp.Stream = true
	if resp.Terminal() || resp.Kind() != MessagePartial {
		t.Error("stream response reported as terminal")
	}
	resp.SetHeader("Content-Encoding", "gzip")
	if resp.Header("content-encoding") != "gzip" {
		t.Error("response header lookup is case sensitive")
	}
}

func TestStreamEventFor(t *testing.T) {
	tests := []struct {
		resp *Response
		want StreamEventType
	}{
		{&Response{Status: 200, Stream: true}, EventPartial},
		{&Response{Status: 200}, EventComplete},
		{&Response{Status: 500}, EventError},
	}
	for i, tt := range tests {
		if got := StreamEventFor(tt.resp, i).Type; got != tt.want {
			t.Errorf("event %d type = %q, want %q", i, got, tt.want)
		}
	}
}

func TestDeclareCapabilities(t *testing.T) {
	req := NewRequest("1", "GET", "/")
	req.DeclareCapabilities()
	if len(req.Capabilities) != 0 {
		t.Errorf("capabilities without header = %v", req.Capabilities)
	}

	req.Capabilities = NewTagSet("beta")
	req.SetHeader(HeaderCapabilities, "stream, binary")
	req.DeclareCapabilities()
	for _, c := range []string{"beta", "stream", "binary"} {
		if !req.Capabilities.Has(c) {
			t.Errorf("missing capability %q in %v", c, req.Capabilities)
		}
	}
}
