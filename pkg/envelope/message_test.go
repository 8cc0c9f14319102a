package envelope

import (
	"testing"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/wire"
	"gopkg.in/inf.v0"
)

func TestParseRequestHydratesData(t *testing.T) {
	raw := []byte(`DPX1{"id":"abc","method":"POST","path":"/x","data":{"n":"5::L"}}`)
	m, err := Parse(raw, wire.JSON)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !m.IsRequest() || m.Kind() != api.MessageRequest {
		t.Fatal("message not recognized as request")
	}
	if m.ID != "abc" || m.Method != "POST" || m.Path != "/x" {
		t.Errorf("message = %+v", m)
	}
	n := m.Data.(map[string]any)["n"]
	if n != int64(5) {
		t.Errorf("data.n = %#v (%T), want int64(5)", n, n)
	}
}

func TestParseResponse(t *testing.T) {
	raw := []byte(`DPX1{"id":"z","status":200,"stream":true,"headers":{"X-Trace":"t1"},"data":"part"}`)
	m, err := Parse(raw, wire.JSON)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.IsRequest() {
		t.Fatal("response parsed as request")
	}
	if m.Status != 200 || !m.Stream || m.Kind() != api.MessagePartial {
		t.Errorf("message = %+v", m)
	}
	if m.Headers["x-trace"] != "t1" {
		t.Errorf("headers = %v, want lower-cased key", m.Headers)
	}
}

func TestRoundTripAllFormats(t *testing.T) {
	price, _ := new(inf.Dec).SetString("99.50")
	for _, f := range []wire.Format{wire.JSON, wire.CBOR, wire.MsgPack} {
		t.Run(f.Name(), func(t *testing.T) {
			req := &Message{
				ID:      "r1",
				Method:  "POST",
				Path:    "/shop/cart",
				Headers: map[string]string{"x-a": "1"},
				Cookies: map[string]string{"session": "s"},
				Query:   map[string]any{"page": int64(2)},
				Data:    map[string]any{"price": price},
			}
			data, err := Marshal(req, f)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			got, err := Parse(data, f)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got.ID != "r1" || got.Method != "POST" || got.Path != "/shop/cart" {
				t.Errorf("request = %+v", got)
			}
			if got.Query["page"] != int64(2) || got.Cookies["session"] != "s" || got.Headers["x-a"] != "1" {
				t.Errorf("request maps = %+v", got)
			}
			if d, ok := got.Data.(map[string]any)["price"].(*inf.Dec); !ok || d.String() != "99.50" {
				t.Errorf("price = %#v", got.Data)
			}

			resp := &Message{
				ID:         "r1",
				Status:     201,
				Stream:     true,
				SetCookies: []api.Cookie{{Name: "session", Value: "s2", MaxAge: 60, HTTPOnly: true}},
				Data:       []any{"a", int64(1)},
			}
			data, err = Marshal(resp, f)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			back, err := Parse(data, f)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if back.Status != 201 || !back.Stream {
				t.Errorf("response = %+v", back)
			}
			if len(back.SetCookies) != 1 || back.SetCookies[0] != resp.SetCookies[0] {
				t.Errorf("cookies = %+v", back.SetCookies)
			}
			items := back.Data.([]any)
			if items[0] != "a" || items[1] != int64(1) {
				t.Errorf("data = %#v", items)
			}
		})
	}
}

func TestTerminalResponseOmitsStream(t *testing.T) {
	data, err := Marshal(&Message{ID: "z", Status: 200}, wire.JSON)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `DPX1{"id":"z","status":200}` {
		t.Errorf("Marshal = %s", data)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind api.ErrorKind
		wantCode string
	}{
		{"missing marker", `{"id":"a","method":"GET","path":"/"}`, api.ErrorKindEnvelope, "missing_marker"},
		{"unparsable container", `DPX1{"id":`, api.ErrorKindDecode, ""},
		{"not a map", `DPX1["a"]`, api.ErrorKindEnvelope, "malformed_envelope"},
		{"missing id", `DPX1{"method":"GET","path":"/"}`, api.ErrorKindEnvelope, "missing_id"},
		{"id with spaces", `DPX1{"id":"a b","method":"GET","path":"/"}`, api.ErrorKindEnvelope, "invalid_id"},
		{"both field sets", `DPX1{"id":"a","method":"GET","path":"/","status":200}`, api.ErrorKindEnvelope, "malformed_envelope"},
		{"neither field set", `DPX1{"id":"a"}`, api.ErrorKindEnvelope, "malformed_envelope"},
		{"method only", `DPX1{"id":"a","method":"GET"}`, api.ErrorKindEnvelope, "malformed_envelope"},
		{"bad status", `DPX1{"id":"a","status":"ok"}`, api.ErrorKindEnvelope, "malformed_envelope"},
		{"status out of range", `DPX1{"id":"a","status":42}`, api.ErrorKindEnvelope, "malformed_envelope"},
		{"header not string", `DPX1{"id":"a","method":"GET","path":"/","headers":{"x":1}}`, api.ErrorKindEnvelope, "malformed_envelope"},
		{"query not map", `DPX1{"id":"a","method":"GET","path":"/","query":[1]}`, api.ErrorKindEnvelope, "malformed_envelope"},
		{"unknown tag", `DPX1{"id":"a","method":"GET","path":"/","data":{"n":"1::ZZ"}}`, api.ErrorKindDecode, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw), wire.JSON)
			if err == nil {
				t.Fatal("expected error")
			}
			apiErr := api.AsError(err)
			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q (%v)", apiErr.Kind, tt.wantKind, err)
			}
			if tt.wantCode != "" && apiErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.wantCode)
			}
		})
	}
}

func TestPeekID(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`DPX1{"id":"a","data":{"n":"1::ZZ"}}`, "a"},
		{`DPX1{"id":"b"}`, "b"},
		{`DPX1{"id":7}`, ""},
		{`DPX1{"id":`, ""},
		{`{"id":"c"}`, ""},
	}
	for _, tt := range tests {
		if got := PeekID([]byte(tt.raw), wire.JSON); got != tt.want {
			t.Errorf("PeekID(%s) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestConvertRequest(t *testing.T) {
	m := &Message{
		ID:      "abc",
		Method:  "post",
		Path:    "/x",
		Headers: map[string]string{"x-a": "1"},
		Query:   map[string]any{"q": "v"},
		Data:    map[string]any{"n": int64(5)},
	}
	req := m.Request(wire.CBOR, "10.0.0.1:1234")
	if req.ID() != "abc" || req.Method != "POST" || req.Transport != api.TransportWebSocket {
		t.Errorf("request = %+v", req)
	}
	if req.Format.Name() != "cbor" || req.Header("X-A") != "1" || req.Query["q"] != "v" {
		t.Errorf("request fields = %+v", req)
	}

	back := FromRequest(req)
	if back.ID != "abc" || back.Path != "/x" {
		t.Errorf("FromRequest = %+v", back)
	}

	resp := api.NewResponse(200, "ok")
	resp.Stream = true
	rm := FromResponse("abc", resp)
	if rm.IsRequest() || rm.Kind() != api.MessagePartial || rm.Response().Data != "ok" {
		t.Errorf("FromResponse = %+v", rm)
	}
}
