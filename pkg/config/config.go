// Package config provides unified configuration for a duplex server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML or TOML config file (discovered or explicitly specified)
//  3. Environment variable overrides (DUPLEX_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/rhuss/duplex/pkg/transport"
)

// Config holds all configuration for a duplex server.
type Config struct {
	Server        ServerConfig        `yaml:"server" toml:"server"`
	WebSocket     WebSocketConfig     `yaml:"websocket" toml:"websocket"`
	Dispatch      DispatchConfig      `yaml:"dispatch" toml:"dispatch"`
	Debug         DebugConfig         `yaml:"debug" toml:"debug"`
	Auth          AuthConfig          `yaml:"auth" toml:"auth"`
	Tasks         TasksConfig         `yaml:"tasks" toml:"tasks"`
	Storage       StorageConfig       `yaml:"storage" toml:"storage"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`

	// Middleware holds interceptor settings keyed by interceptor name.
	// Every entry may carry "enabled" and "rank" next to its own fields.
	Middleware map[string]map[string]any `yaml:"middleware" toml:"middleware"`

	// Scopes holds per-namespace interceptor overrides, merged field by
	// field over Middleware for exchanges under that namespace.
	Scopes map[string]map[string]map[string]any `yaml:"scopes" toml:"scopes"`
}

// ServerConfig holds single-shot transport settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr" toml:"addr"`                               // default: ":8080"
	Prefix            string        `yaml:"prefix" toml:"prefix"`                           // mount point of the router, default: ""
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" toml:"read_header_timeout"` // default: 10s
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`       // default: 15s
	MaxBodySize       int64         `yaml:"max_body_size" toml:"max_body_size"`             // default: 10 MiB
	ExposeRoutes      bool          `yaml:"expose_routes" toml:"expose_routes"`             // serve /_routes
	MaxPathLength     int           `yaml:"max_path_length" toml:"max_path_length"`         // default: 2048
	MaxDepth          int           `yaml:"max_depth" toml:"max_depth"`                     // default: 64
	MaxHeaders        int           `yaml:"max_headers" toml:"max_headers"`                 // default: 128
}

// WebSocketConfig holds persistent transport settings.
type WebSocketConfig struct {
	Enabled        bool          `yaml:"enabled" toml:"enabled"`             // default: true
	Path           string        `yaml:"path" toml:"path"`                   // default: "/ws"
	ReadLimit      int64         `yaml:"read_limit" toml:"read_limit"`       // default: 1 MiB
	MaxInFlight    int           `yaml:"max_in_flight" toml:"max_in_flight"` // default: 64
	PingInterval   time.Duration `yaml:"ping_interval" toml:"ping_interval"` // default: 30s
	PongWait       time.Duration `yaml:"pong_wait" toml:"pong_wait"`         // default: 60s
	WriteWait      time.Duration `yaml:"write_wait" toml:"write_wait"`       // default: 10s
	CloseGrace     time.Duration `yaml:"close_grace" toml:"close_grace"`     // default: 5s
	AllowedOrigins []string      `yaml:"allowed_origins" toml:"allowed_origins"`
}

// DispatchConfig holds parameter binding settings.
type DispatchConfig struct {
	// StrictParams rejects parameters an endpoint does not declare.
	StrictParams bool `yaml:"strict_params" toml:"strict_params"`
}

// DebugConfig holds diagnostic settings. DUPLEX_DEBUG and DUPLEX_LOG_LEVEL
// take precedence over Categories and Level.
type DebugConfig struct {
	Categories   string `yaml:"categories" toml:"categories"`
	Level        string `yaml:"level" toml:"level"` // default: "INFO"
	ExposeErrors bool   `yaml:"expose_errors" toml:"expose_errors"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type    string          `yaml:"type" toml:"type"`         // "none", "apikey" or "jwt", default: "none"
	Roles   []string        `yaml:"roles" toml:"roles"`       // roles granted by type=none
	APIKeys []APIKeyConfig  `yaml:"api_keys" toml:"api_keys"` // entries for type=apikey
	JWT     JWTConfig       `yaml:"jwt" toml:"jwt"`
	Tiers   map[string]Tier `yaml:"tiers" toml:"tiers"` // ratelimit budgets per service tier
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string   `yaml:"key" toml:"key" json:"key"`
	KeyFile     string   `yaml:"key_file" toml:"key_file" json:"key_file"` // _file variant for key
	Subject     string   `yaml:"subject" toml:"subject" json:"subject"`
	ServiceTier string   `yaml:"service_tier" toml:"service_tier" json:"service_tier"`
	Roles       []string `yaml:"roles" toml:"roles" json:"roles"`
}

// JWTConfig holds JWT authenticator settings.
type JWTConfig struct {
	Issuer       string        `yaml:"issuer" toml:"issuer"`
	Audience     string        `yaml:"audience" toml:"audience"`
	JWKSURL      string        `yaml:"jwks_url" toml:"jwks_url"`
	SubjectClaim string        `yaml:"subject_claim" toml:"subject_claim"`
	TierClaim    string        `yaml:"tier_claim" toml:"tier_claim"`
	RolesClaim   string        `yaml:"roles_claim" toml:"roles_claim"`
	ScopesClaim  string        `yaml:"scopes_claim" toml:"scopes_claim"`
	CacheTTL     time.Duration `yaml:"cache_ttl" toml:"cache_ttl"`
}

// Tier is the ratelimit budget of one service tier.
type Tier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" toml:"requests_per_minute"`
	Burst             int `yaml:"burst" toml:"burst"`
}

// TasksConfig holds task runner settings.
type TasksConfig struct {
	Workers int `yaml:"workers" toml:"workers"` // 0 selects GOMAXPROCS
}

// StorageConfig selects the order book backend of the demo shop.
type StorageConfig struct {
	Type     string         `yaml:"type" toml:"type"`         // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size" toml:"max_size"` // memory LRU bound, default: 10000
	Postgres PostgresConfig `yaml:"postgres" toml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn" toml:"dsn"`
	DSNFile         string        `yaml:"dsn_file" toml:"dsn_file"`                   // _file variant for dsn
	MaxConns        int32         `yaml:"max_conns" toml:"max_conns"`                 // default: 25
	MinConns        int32         `yaml:"min_conns" toml:"min_conns"`                 // default: 5
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" toml:"max_conn_lifetime"` // default: 5m
	MigrateOnStart  bool          `yaml:"migrate_on_start" toml:"migrate_on_start"`   // default: true
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	Tracing TracingConfig `yaml:"tracing" toml:"tracing"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"` // default: true
	Path    string `yaml:"path" toml:"path"`       // default: "/metrics"
}

// TracingConfig holds OTLP trace export settings. Spans are only produced
// for exchanges when the "tracing" interceptor is enabled as well.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" toml:"enabled"`
	ServiceName  string  `yaml:"service_name" toml:"service_name"`   // default: "duplex"
	Endpoint     string  `yaml:"endpoint" toml:"endpoint"`           // OTLP/HTTP collector, e.g. "localhost:4318"
	SamplingRate float64 `yaml:"sampling_rate" toml:"sampling_rate"` // default: 1
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			MaxBodySize:       10 << 20,
			MaxPathLength:     2048,
			MaxDepth:          64,
			MaxHeaders:        128,
		},
		WebSocket: WebSocketConfig{
			Enabled:      true,
			Path:         "/ws",
			ReadLimit:    1 << 20,
			MaxInFlight:  64,
			PingInterval: 30 * time.Second,
			PongWait:     60 * time.Second,
			WriteWait:    10 * time.Second,
			CloseGrace:   5 * time.Second,
		},
		Debug: DebugConfig{
			Level: "INFO",
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns:        25,
				MinConns:        5,
				MaxConnLifetime: 5 * time.Minute,
				MigrateOnStart:  true,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			Tracing: TracingConfig{
				ServiceName:  "duplex",
				SamplingRate: 1,
			},
		},
	}
}

// MiddlewareSettings returns the global interceptor settings.
func (c *Config) MiddlewareSettings() transport.Settings {
	return toSettings(c.Middleware)
}

// ScopeSettings returns the per-namespace interceptor overrides.
func (c *Config) ScopeSettings() map[string]transport.Settings {
	if len(c.Scopes) == 0 {
		return nil
	}
	out := make(map[string]transport.Settings, len(c.Scopes))
	for ns, s := range c.Scopes {
		out[ns] = toSettings(s)
	}
	return out
}

func toSettings(m map[string]map[string]any) transport.Settings {
	if len(m) == 0 {
		return nil
	}
	out := make(transport.Settings, len(m))
	for name, fields := range m {
		f := make(transport.Fields, len(fields))
		for k, v := range fields {
			f[k] = v
		}
		out[name] = f
	}
	return out
}
