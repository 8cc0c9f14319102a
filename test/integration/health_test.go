package integration

import (
	"net/http"
	"strings"
	"testing"

	"github.com/rhuss/duplex/pkg/router"
)

func TestHealthEndpoint(t *testing.T) {
	// Operational endpoints are served next to the pipeline, so they need
	// no credentials.
	resp := call(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	body := readBody(t, resp)
	if !strings.Contains(body, `"status":"ok"`) {
		t.Errorf("body = %q, want to contain status ok", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	readBody(t, call(t, http.MethodGet, "/shop/products/list", userKey, nil))

	resp := call(t, http.MethodGet, "/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := readBody(t, resp)
	for _, name := range []string{"duplex_exchanges_total", "duplex_exchange_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output lacks %s", name)
		}
	}
	if !strings.Contains(body, `namespace="shop"`) {
		t.Error("metrics output lacks the shop namespace label")
	}
}

func TestRouteListing(t *testing.T) {
	resp := call(t, http.MethodGet, "/_routes", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var listing struct {
		Routes []router.RouteInfo `json:"routes"`
	}
	decodeJSON(t, resp, &listing)

	byPath := map[string]router.RouteInfo{}
	for _, ri := range listing.Routes {
		byPath[ri.Path] = ri
	}
	tests := []struct {
		path       string
		auth       string
		capability string
	}{
		{"/shop/products/list", "", ""},
		{"/shop/products/restock", "admin", ""},
		{"/shop/products/watch", "", "stream"},
		{"/shop/orders/place", "(user | admin)", ""},
	}
	for _, tt := range tests {
		ri, ok := byPath[tt.path]
		if !ok {
			t.Errorf("route %s not listed", tt.path)
			continue
		}
		if ri.Auth != tt.auth || ri.Capability != tt.capability {
			t.Errorf("%s: auth=%q capability=%q, want %q %q", tt.path, ri.Auth, ri.Capability, tt.auth, tt.capability)
		}
	}
}
