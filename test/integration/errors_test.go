package integration

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
)

func TestMissingCredentials(t *testing.T) {
	body := expectError(t, call(t, http.MethodGet, "/shop/products/list", "", nil),
		http.StatusUnauthorized, "authorization_error")
	if body.Error.Code != "unauthenticated" {
		t.Errorf("error.code = %q, want unauthenticated", body.Error.Code)
	}
}

func TestUnknownKey(t *testing.T) {
	expectError(t, call(t, http.MethodGet, "/shop/products/list", "not-a-key", nil),
		http.StatusUnauthorized, "authorization_error")
}

func TestUnknownRoute(t *testing.T) {
	tests := []string{"/nowhere", "/shop/nowhere", "/shop/products/list/extra"}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			expectError(t, call(t, http.MethodGet, path, userKey, nil), http.StatusNotFound, "not_found")
		})
	}
}

func TestInvalidJSON(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, testEnv.BaseURL()+"/shop/orders/quote", bytes.NewReader([]byte(`{invalid json`)))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+userKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	expectError(t, resp, http.StatusBadRequest, "decode_error")
}

func TestUnknownTypeTag(t *testing.T) {
	resp := call(t, http.MethodPost, "/shop/orders/quote", userKey, map[string]any{"sku": "tea-01", "quantity": "5::ZZ"})
	expectError(t, resp, http.StatusBadRequest, "decode_error")
}

func TestParameterValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  map[string]any
		param string
	}{
		{"missing required", map[string]any{"sku": "tea-01"}, "quantity"},
		{"wrong type", map[string]any{"sku": "tea-01", "quantity": "many"}, "quantity"},
		{"handler rejects", map[string]any{"sku": "tea-01", "quantity": 0}, "quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := expectError(t, call(t, http.MethodPost, "/shop/orders/quote", userKey, tt.body),
				http.StatusBadRequest, "validation_error")
			if body.Error.Param != tt.param {
				t.Errorf("error.param = %q, want %q", body.Error.Param, tt.param)
			}
		})
	}
}

func TestMissingCapability(t *testing.T) {
	body := expectError(t, call(t, http.MethodGet, "/shop/products/watch?sku=tea-01", userKey, nil),
		http.StatusServiceUnavailable, "unavailable")
	if body.Error.Code != "capability_missing" {
		t.Errorf("error.code = %q, want capability_missing", body.Error.Code)
	}
}

func TestUnsupportedContentType(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, testEnv.BaseURL()+"/shop/orders/quote", strings.NewReader("<quote/>"))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("Authorization", "Bearer "+userKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	expectError(t, resp, http.StatusBadRequest, "decode_error")
}
