package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gopkg.in/inf.v0"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/dispatch"
	"github.com/rhuss/duplex/pkg/router"
	"github.com/rhuss/duplex/pkg/transport"
	"github.com/rhuss/duplex/pkg/wire"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tagsFromHeader stands in for authentication: it takes the caller tags
// from a test header.
func tagsFromHeader(next transport.Handler) transport.Handler {
	return transport.HandlerFunc(func(ctx context.Context, req *api.Request) (*api.Response, error) {
		r := req.Clone()
		r.Tags = api.ParseTagSet(req.Header("x-test-tags"))
		return next.Handle(ctx, r)
	})
}

func shopRouter(t *testing.T) *router.Router {
	t.Helper()
	shop, err := router.NewSubtree()
	if err != nil {
		t.Fatal(err)
	}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}

	price, _ := new(inf.Dec).SetString("99.50")
	must(shop.Handle("products/list", router.NewEndpoint(
		func(context.Context, router.Args) (any, error) {
			return []any{map[string]any{"sku": "A1", "price": price}}, nil
		}), router.WithAuth("user|admin")))

	must(shop.Handle("echo", router.NewEndpoint(
		func(_ context.Context, args router.Args) (any, error) {
			return map[string]any{"n": args.Int("n"), "type": fmt.Sprintf("%T", args.Get("n"))}, nil
		},
		router.Optional("n", router.TypeInt, int64(0)),
	)))

	must(shop.Handle("stream", router.NewEndpoint(
		func(ctx context.Context, _ router.Args) (any, error) {
			for _, part := range []string{"one", "two"} {
				if err := dispatch.Stream(ctx, part); err != nil {
					return nil, err
				}
			}
			return "done", nil
		})))

	must(shop.Handle("fail", router.NewEndpoint(
		func(context.Context, router.Args) (any, error) {
			return nil, errors.New("db down")
		})))

	must(shop.Handle("session", router.NewEndpoint(
		func(ctx context.Context, _ router.Args) (any, error) {
			req := api.RequestFromContext(ctx)
			resp := api.OK(map[string]any{"seen": req.Cookies["sid"]})
			resp.SetCookie(api.Cookie{Name: "sid", Value: "next", Path: "/", HTTPOnly: true})
			return resp, nil
		})))

	must(shop.Handle("watch", router.NewEndpoint(
		func(context.Context, router.Args) (any, error) {
			return "watching", nil
		}), router.WithCapability("stream")))

	r := router.New(quietLogger())
	must(r.Attach("shop", shop))
	return r
}

func newTestAdapter(t *testing.T, cfg Config) *Adapter {
	t.Helper()
	r := shopRouter(t)

	catalog := transport.NewCatalog()
	if err := transport.RegisterBuiltins(catalog); err != nil {
		t.Fatal(err)
	}
	if err := catalog.Register(transport.Definition{
		Name:           "test-tags",
		Rank:           100,
		DefaultEnabled: true,
		New: func(transport.Fields, *slog.Logger) (transport.Middleware, error) {
			return tagsFromHeader, nil
		},
	}); err != nil {
		t.Fatal(err)
	}

	pipeline, err := transport.NewPipeline(catalog, dispatch.New(r), nil, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	return NewAdapter(pipeline, cfg, WithRoutes(r), WithLogger(quietLogger()))
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var decoded struct {
		Error map[string]any `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("error body is not JSON: %v: %s", err, body)
	}
	return decoded.Error
}

func TestExchangeRoutesByTags(t *testing.T) {
	h := newTestAdapter(t, DefaultConfig()).Handler()

	tests := []struct {
		name       string
		path       string
		tags       string
		wantStatus int
		wantKind   string
	}{
		{"user allowed", "/shop/products/list", "user", http.StatusOK, ""},
		{"admin allowed", "/shop/products/list", "admin", http.StatusOK, ""},
		{"no tags", "/shop/products/list", "", http.StatusForbidden, "authorization_error"},
		{"unknown route", "/shop/products/missing", "user", http.StatusNotFound, "not_found"},
		{"unknown namespace", "/nope", "user", http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("X-Test-Tags", tt.tags)
			rec := do(t, h, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
			if tt.wantKind != "" {
				if got := errorBody(t, rec.Body.Bytes())["kind"]; got != tt.wantKind {
					t.Errorf("kind = %v, want %s", got, tt.wantKind)
				}
				return
			}
			if got := rec.Body.String(); got != `[{"price":"99.50::N","sku":"A1"}]` {
				t.Errorf("body = %s", got)
			}
			if rec.Header().Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestRequestIDPropagation(t *testing.T) {
	h := newTestAdapter(t, DefaultConfig()).Handler()

	req := httptest.NewRequest(http.MethodGet, "/shop/echo", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := do(t, h, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/shop/echo", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("generated request id missing")
	}

	req = httptest.NewRequest(http.MethodGet, "/shop/echo", nil)
	req.Header.Set("X-Request-ID", "has space")
	rec = do(t, h, req)
	if got := rec.Header().Get("X-Request-ID"); got == "has space" || got == "" {
		t.Errorf("invalid id not replaced: %q", got)
	}
}

func TestQueryHydration(t *testing.T) {
	h := newTestAdapter(t, DefaultConfig()).Handler()

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/shop/echo?n=5::L", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"n":5,"type":"int64"}` {
		t.Errorf("got %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/shop/echo?n=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := errorBody(t, rec.Body.Bytes()); body["kind"] != "validation_error" || body["param"] != "n" {
		t.Errorf("body = %v", body)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/shop/echo?n=5::ZZ", nil))
	if rec.Code != http.StatusBadRequest || errorBody(t, rec.Body.Bytes())["kind"] != "decode_error" {
		t.Errorf("unknown tag: %d %s", rec.Code, rec.Body)
	}
}

func TestBodyFormats(t *testing.T) {
	h := newTestAdapter(t, DefaultConfig()).Handler()

	cborBody, err := wire.Marshal(wire.CBOR, map[string]any{"n": int64(9)})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		contentType string
		accept      string
		body        []byte
		wantType    string
	}{
		{"json", "application/json", "", []byte(`{"n":"7::L"}`), "application/json"},
		{"json charset", "application/json; charset=utf-8", "", []byte(`{"n":7}`), "application/json"},
		{"form", "application/x-www-form-urlencoded", "", []byte("n=7"), "application/json"},
		{"cbor", "application/cbor", "", cborBody, "application/cbor"},
		{"json to msgpack", "application/json", "application/msgpack", []byte(`{"n":7}`), "application/msgpack"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/shop/echo", bytes.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := do(t, h, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body)
			}
			if got := rec.Header().Get("Content-Type"); got != tt.wantType {
				t.Fatalf("Content-Type = %q, want %q", got, tt.wantType)
			}
			f, _ := wire.ForContentType(tt.wantType)
			decoded, err := wire.Unmarshal(f, rec.Body.Bytes())
			if err != nil {
				t.Fatal(err)
			}
			if n := decoded.(map[string]any)["n"]; n != int64(7) && n != int64(9) {
				t.Errorf("n = %#v", n)
			}
		})
	}
}

func TestBodyRejections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodySize = 16
	h := newTestAdapter(t, cfg).Handler()

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantKind    string
	}{
		{"malformed json", "application/json", `{"n":`, http.StatusBadRequest, "decode_error"},
		{"unsupported type", "text/xml", `<n>7</n>`, http.StatusBadRequest, "decode_error"},
		{"too large", "application/json", `{"n":"` + strings.Repeat("x", 64) + `"}`, http.StatusRequestEntityTooLarge, "decode_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/shop/echo", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := do(t, h, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
			if got := errorBody(t, rec.Body.Bytes())["kind"]; got != tt.wantKind {
				t.Errorf("kind = %v, want %s", got, tt.wantKind)
			}
		})
	}
}

func TestHandlerErrorHidesDetail(t *testing.T) {
	h := newTestAdapter(t, DefaultConfig()).Handler()

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/shop/fail", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	body := errorBody(t, rec.Body.Bytes())
	if body["kind"] != "handler_error" {
		t.Errorf("kind = %v", body["kind"])
	}
	if strings.Contains(rec.Body.String(), "db down") {
		t.Error("cause leaked into the response body")
	}
}

func TestStreamedResultAsSSE(t *testing.T) {
	srv := httptest.NewServer(newTestAdapter(t, DefaultConfig()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/shop/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	want := "event: partial\ndata: {\"data\":\"one\",\"sequence\":0,\"status\":200,\"type\":\"partial\"}\n\n" +
		"event: partial\ndata: {\"data\":\"two\",\"sequence\":1,\"status\":200,\"type\":\"partial\"}\n\n" +
		"event: complete\ndata: {\"data\":\"done\",\"sequence\":2,\"status\":200,\"type\":\"complete\"}\n\n" +
		"data: [DONE]\n\n"
	if string(body) != want {
		t.Errorf("stream body:\n%s\nwant:\n%s", body, want)
	}
}

func TestCookies(t *testing.T) {
	h := newTestAdapter(t, DefaultConfig()).Handler()

	req := httptest.NewRequest(http.MethodGet, "/shop/session", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "abc"})
	rec := do(t, h, req)
	if rec.Body.String() != `{"seen":"abc"}` {
		t.Errorf("body = %s", rec.Body)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != "next" || !cookies[0].HttpOnly {
		t.Errorf("cookies = %v", cookies)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	a := newTestAdapter(t, DefaultConfig())

	rec := do(t, a.Handler(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body)
	}

	rec = do(t, a.Handler(), httptest.NewRequest(http.MethodGet, "/_routes", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("route listing served without opt-in: %d", rec.Code)
	}

	cfg := DefaultConfig()
	cfg.ExposeRoutes = true
	rec = do(t, newTestAdapter(t, cfg).Handler(), httptest.NewRequest(http.MethodGet, "/_routes", nil))
	var listing struct {
		Routes []router.RouteInfo `json:"routes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatal(err)
	}
	if len(listing.Routes) != 5 {
		t.Fatalf("routes = %+v", listing.Routes)
	}
	for _, ri := range listing.Routes {
		if ri.Path == "/shop/products/list" && ri.Auth == "" {
			t.Error("listing lost the auth expression")
		}
	}

	rec = do(t, a.Handler(), httptest.NewRequest(http.MethodDelete, "/_inflight/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("cancel unknown = %d", rec.Code)
	}
}

func TestPrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Prefix = "/api/"
	h := newTestAdapter(t, cfg).Handler()

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/shop/echo", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d: %s", rec.Code, rec.Body)
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		accept string
		in     wire.Format
		want   wire.Format
	}{
		{"", nil, wire.JSON},
		{"", wire.CBOR, wire.CBOR},
		{"", wire.Form, wire.JSON},
		{"*/*", wire.MsgPack, wire.MsgPack},
		{"application/cbor", nil, wire.CBOR},
		{"application/json;q=0.5, application/msgpack", nil, wire.MsgPack},
		{"text/html, application/cbor;q=0.1", wire.JSON, wire.CBOR},
		{"text/html", wire.CBOR, wire.CBOR},
		{"application/x-www-form-urlencoded", nil, wire.JSON},
	}
	for _, tt := range tests {
		if got := negotiate(tt.accept, tt.in); got != tt.want {
			t.Errorf("negotiate(%q, %v) = %s, want %s", tt.accept, tt.in, got.Name(), tt.want.Name())
		}
	}
}

func TestCapabilitiesWithoutAuth(t *testing.T) {
	h := newTestAdapter(t, DefaultConfig()).Handler()

	rec := do(t, h, httptest.NewRequest("GET", "/shop/watch", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status without capability = %d, want 503", rec.Code)
	}
	if code := errorBody(t, rec.Body.Bytes())["code"]; code != api.CodeCapability {
		t.Errorf("code = %v, want %s", code, api.CodeCapability)
	}

	req := httptest.NewRequest("GET", "/shop/watch", nil)
	req.Header.Set("X-Capabilities", "beta, stream")
	rec = do(t, h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with capability = %d, want 200: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "watching") {
		t.Errorf("body = %s", rec.Body)
	}
}
