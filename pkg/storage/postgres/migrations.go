package postgres

import (
	"context"
	"fmt"
	"log/slog"
)

// migration is one versioned schema change.
type migration struct {
	version int
	name    string
	sql     string
}

// migrations are applied in order. Never edit an applied migration; add a
// new one instead.
var migrations = []migration{
	{1, "create_schema_migrations", `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`},
	{2, "create_orders", `
		CREATE TABLE IF NOT EXISTS orders (
			id           TEXT PRIMARY KEY,
			owner        TEXT NOT NULL DEFAULT '',
			sku          TEXT NOT NULL,
			quantity     BIGINT NOT NULL,
			total        NUMERIC NOT NULL,
			placed_at    TIMESTAMPTZ NOT NULL,
			cancelled_at TIMESTAMPTZ
		)`},
	{3, "index_orders_owner", `
		CREATE INDEX IF NOT EXISTS orders_owner_placed_idx
			ON orders (owner, placed_at DESC, id DESC)
			WHERE cancelled_at IS NULL`},
}

// migrate applies pending schema migrations, tracking applied versions in
// the schema_migrations table.
func (s *Store) migrate(ctx context.Context) error {
	for _, m := range migrations {
		var exists bool
		err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			m.version,
		).Scan(&exists)
		// The first migration creates schema_migrations, so the lookup fails
		// until it has run.
		if err != nil {
			exists = false
		}
		if exists {
			continue
		}

		slog.Info("applying migration", "name", m.name, "version", m.version)

		if _, err := s.pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration %d_%s: %w", m.version, m.name, err)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING",
			m.version,
		); err != nil {
			return fmt.Errorf("recording migration %d_%s: %w", m.version, m.name, err)
		}
	}
	return nil
}
