package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool sizing applied when the order store config leaves a field at zero.
const (
	DefaultMaxConns        int32 = 25
	DefaultMinConns        int32 = 5
	DefaultMaxConnLifetime       = 5 * time.Minute
)

// Config describes the order database. Zero pool fields take the defaults
// above.
type Config struct {
	// DSN is a libpq connection string or postgres:// URL.
	DSN string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration

	// MigrateOnStart brings the orders schema up to date in New.
	MigrateOnStart bool
}

func (c *Config) defaults() {
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = DefaultMaxConnLifetime
	}
}

// poolConfig resolves defaults and turns c into a pgx pool configuration.
func (c Config) poolConfig() (*pgxpool.Config, error) {
	if c.DSN == "" {
		return nil, errors.New("postgres: empty DSN")
	}
	c.defaults()
	if c.MinConns > c.MaxConns {
		return nil, fmt.Errorf("postgres: min_conns %d exceeds max_conns %d", c.MinConns, c.MaxConns)
	}

	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	pc.MaxConns = c.MaxConns
	pc.MinConns = c.MinConns
	pc.MaxConnLifetime = c.MaxConnLifetime
	return pc, nil
}
