// Package postgres provides a PostgreSQL implementation of storage.Store.
// It uses pgx/v5 for connection pooling and keeps order totals in a
// NUMERIC column so decimal values survive the round trip exactly.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/inf.v0"

	"github.com/rhuss/duplex/pkg/storage"
)

// Store is a PostgreSQL-backed order store.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

const orderColumns = "id, owner, sku, quantity, total::text, placed_at, cancelled_at"

// SaveOrder inserts a new order.
func (s *Store) SaveOrder(ctx context.Context, o *storage.Order) error {
	owner := o.Owner
	if owner == "" {
		owner = storage.GetOwner(ctx)
	}
	total := "0"
	if o.Total != nil {
		total = o.Total.String()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (id, owner, sku, quantity, total, placed_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
	`, o.ID, owner, o.SKU, o.Quantity, total, o.PlacedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

// GetOrder retrieves an order by ID, including cancelled orders.
func (s *Store) GetOrder(ctx context.Context, id string) (*storage.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE id = $1"
	args := []any{id}
	if owner := storage.GetOwner(ctx); owner != "" {
		query += " AND owner = $2"
		args = append(args, owner)
	}

	o, err := scanOrder(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}
	return o, nil
}

// CancelOrder sets cancelled_at on a live order.
func (s *Store) CancelOrder(ctx context.Context, id string, at time.Time) (*storage.Order, error) {
	query := "UPDATE orders SET cancelled_at = $1 WHERE id = $2 AND cancelled_at IS NULL"
	args := []any{at, id}
	if owner := storage.GetOwner(ctx); owner != "" {
		query += " AND owner = $3"
		args = append(args, owner)
	}
	query += " RETURNING " + orderColumns

	o, err := scanOrder(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a second cancel from a missing order.
		if existing, getErr := s.GetOrder(ctx, id); getErr == nil && existing.CancelledAt != nil {
			return nil, storage.ErrCancelled
		}
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cancelling order: %w", err)
	}
	return o, nil
}

// ListOrders returns a page of live orders ordered by placement time.
func (s *Store) ListOrders(ctx context.Context, opts storage.ListOptions) (*storage.OrderList, error) {
	dir, cmp := "DESC", "<"
	if opts.Order == "asc" {
		dir, cmp = "ASC", ">"
	}

	query := "SELECT " + orderColumns + " FROM orders WHERE cancelled_at IS NULL"
	var args []any
	if owner := storage.GetOwner(ctx); owner != "" {
		args = append(args, owner)
		query += fmt.Sprintf(" AND owner = $%d", len(args))
	}
	if opts.After != "" {
		// An unknown cursor yields NULL, which matches nothing.
		args = append(args, opts.After)
		query += fmt.Sprintf(" AND (placed_at, id) %s (SELECT placed_at, id FROM orders WHERE id = $%d)", cmp, len(args))
	}
	limit := opts.PageSize()
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY placed_at %s, id %s LIMIT $%d", dir, dir, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var matches []*storage.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		matches = append(matches, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	// The cursor is already applied in SQL.
	return storage.Page(matches, storage.ListOptions{Limit: limit}), nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanOrder(row pgx.Row) (*storage.Order, error) {
	var o storage.Order
	var total string
	if err := row.Scan(&o.ID, &o.Owner, &o.SKU, &o.Quantity, &total, &o.PlacedAt, &o.CancelledAt); err != nil {
		return nil, err
	}
	dec, ok := new(inf.Dec).SetString(total)
	if !ok {
		return nil, fmt.Errorf("order %s: malformed total %q", o.ID, total)
	}
	o.Total = dec
	return &o, nil
}

// isDuplicateKey reports whether err is a PostgreSQL unique violation.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
