package main

import (
	"context"
	"testing"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/auth"
	"github.com/rhuss/duplex/pkg/config"
)

func TestNewAuthChain(t *testing.T) {
	tests := []struct {
		name         string
		cfg          config.AuthConfig
		header       string
		value        string
		wantDecision auth.AuthDecision
		wantSubject  string
	}{
		{
			name:         "none grants configured roles",
			cfg:          config.AuthConfig{Type: "none", Roles: []string{"admin"}},
			wantDecision: auth.Yes,
			wantSubject:  "anonymous",
		},
		{
			name: "apikey accepts known key",
			cfg: config.AuthConfig{Type: "apikey", APIKeys: []config.APIKeyConfig{
				{Key: "s3cret", Subject: "alice", Roles: []string{"user"}},
			}},
			header:       "x-api-key",
			value:        "s3cret",
			wantDecision: auth.Yes,
			wantSubject:  "alice",
		},
		{
			name: "apikey rejects missing key",
			cfg: config.AuthConfig{Type: "apikey", APIKeys: []config.APIKeyConfig{
				{Key: "s3cret", Subject: "alice"},
			}},
			wantDecision: auth.No,
		},
		{
			name:         "jwt without token",
			cfg:          config.AuthConfig{Type: "jwt", JWT: config.JWTConfig{JWKSURL: "http://127.0.0.1:1/jwks"}},
			wantDecision: auth.No,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := newAuthChain(tt.cfg)
			if err != nil {
				t.Fatalf("newAuthChain: %v", err)
			}
			req := api.NewRequest("1", "GET", "/shop")
			if tt.header != "" {
				req.SetHeader(tt.header, tt.value)
			}
			res := chain.Authenticate(context.Background(), req)
			if res.Decision != tt.wantDecision {
				t.Fatalf("decision = %v, want %v", res.Decision, tt.wantDecision)
			}
			if tt.wantSubject != "" && (res.Identity == nil || res.Identity.Subject != tt.wantSubject) {
				t.Errorf("identity = %+v, want subject %q", res.Identity, tt.wantSubject)
			}
		})
	}

	if _, err := newAuthChain(config.AuthConfig{Type: "kerberos"}); err == nil {
		t.Error("unknown auth type accepted")
	}
}

func TestTierConfigs(t *testing.T) {
	got := tierConfigs(map[string]config.Tier{"gold": {RequestsPerMinute: 1200, Burst: 50}})
	if got["gold"] != (auth.TierConfig{RequestsPerMinute: 1200, Burst: 50}) {
		t.Errorf("tierConfigs = %+v", got)
	}
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	store, err := newStore(ctx, config.StorageConfig{Type: "memory", MaxSize: 10})
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Errorf("memory health: %v", err)
	}
	store.Close()

	if _, err := newStore(ctx, config.StorageConfig{Type: "redis"}); err == nil {
		t.Error("unknown storage type accepted")
	}
	if _, err := newStore(ctx, config.StorageConfig{Type: "postgres", Postgres: config.PostgresConfig{DSN: "::not a dsn"}}); err == nil {
		t.Error("malformed DSN accepted")
	}
}
