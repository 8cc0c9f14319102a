package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// All failures are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("server.addr is required"))
	}
	if p := c.Server.Prefix; p != "" && (!strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/")) {
		errs = append(errs, fmt.Errorf("server.prefix must start and must not end with \"/\", got %q", p))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	if c.WebSocket.Enabled {
		if !strings.HasPrefix(c.WebSocket.Path, "/") {
			errs = append(errs, fmt.Errorf("websocket.path must start with \"/\", got %q", c.WebSocket.Path))
		}
		if c.WebSocket.ReadLimit <= 0 {
			errs = append(errs, fmt.Errorf("websocket.read_limit must be > 0, got %d", c.WebSocket.ReadLimit))
		}
		if c.WebSocket.MaxInFlight <= 0 {
			errs = append(errs, fmt.Errorf("websocket.max_in_flight must be > 0, got %d", c.WebSocket.MaxInFlight))
		}
		if c.WebSocket.PingInterval <= 0 || c.WebSocket.PongWait <= c.WebSocket.PingInterval {
			errs = append(errs, fmt.Errorf("websocket.pong_wait (%s) must exceed a positive websocket.ping_interval (%s)",
				c.WebSocket.PongWait, c.WebSocket.PingInterval))
		}
	}

	if c.Tasks.Workers < 0 {
		errs = append(errs, fmt.Errorf("tasks.workers must be >= 0, got %d", c.Tasks.Workers))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys is required when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	switch c.Storage.Type {
	case "memory":
		if c.Storage.MaxSize < 0 {
			errs = append(errs, fmt.Errorf("storage.max_size must be >= 0, got %d", c.Storage.MaxSize))
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or dsn_file is required when storage.type is \"postgres\""))
		}
		if pg := c.Storage.Postgres; pg.MinConns > pg.MaxConns {
			errs = append(errs, fmt.Errorf("storage.postgres.min_conns (%d) must not exceed max_conns (%d)", pg.MinConns, pg.MaxConns))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	for name, t := range c.Auth.Tiers {
		if t.RequestsPerMinute < 0 || t.Burst < 0 {
			errs = append(errs, fmt.Errorf("auth.tiers.%s: budgets must be >= 0", name))
		}
	}

	for name := range c.Scopes {
		if name == "" || strings.Contains(name, "/") {
			errs = append(errs, fmt.Errorf("scopes: %q is not a namespace name", name))
		}
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	if tr := c.Observability.Tracing; tr.Enabled {
		if tr.Endpoint == "" {
			errs = append(errs, fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled"))
		}
		if tr.SamplingRate < 0 || tr.SamplingRate > 1 {
			errs = append(errs, fmt.Errorf("observability.tracing.sampling_rate must be within [0, 1], got %g", tr.SamplingRate))
		}
	}

	return errors.Join(errs...)
}
