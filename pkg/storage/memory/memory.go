// Package memory provides an in-memory storage.Store for tests and
// single-process deployments. Orders are lost when the process restarts.
// Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rhuss/duplex/pkg/storage"
)

type entry struct {
	order   storage.Order
	lruElem *list.Element
}

// Store is an in-memory order store with optional LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
}

var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. Otherwise the least recently used order is evicted when
// the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// SaveOrder stores a copy of o, stamping the owner from the context when
// the order has none.
func (s *Store) SaveOrder(ctx context.Context, o *storage.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[o.ID]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	e := &entry{order: *o}
	if e.order.Owner == "" {
		e.order.Owner = storage.GetOwner(ctx)
	}
	e.lruElem = s.lruList.PushFront(o.ID)
	s.entries[o.ID] = e
	return nil
}

// GetOrder returns a copy of the order.
func (s *Store) GetOrder(ctx context.Context, id string) (*storage.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	s.lruList.MoveToFront(e.lruElem)
	o := e.order
	return &o, nil
}

// CancelOrder soft-deletes the order. The record stays readable through
// GetOrder.
func (s *Store) CancelOrder(ctx context.Context, id string, at time.Time) (*storage.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.order.CancelledAt != nil {
		return nil, storage.ErrCancelled
	}
	e.order.CancelledAt = &at
	o := e.order
	return &o, nil
}

// ListOrders returns live orders sorted by placement time, newest first
// unless opts.Order is "asc".
func (s *Store) ListOrders(ctx context.Context, opts storage.ListOptions) (*storage.OrderList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner := storage.GetOwner(ctx)
	var matches []*storage.Order
	for _, e := range s.entries {
		if e.order.CancelledAt != nil {
			continue
		}
		if owner != "" && e.order.Owner != owner {
			continue
		}
		o := e.order
		matches = append(matches, &o)
	}

	asc := opts.Order == "asc"
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if !a.PlacedAt.Equal(b.PlacedAt) {
			if asc {
				return a.PlacedAt.Before(b.PlacedAt)
			}
			return a.PlacedAt.After(b.PlacedAt)
		}
		if asc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	return storage.Page(matches, opts), nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// lookup finds an entry visible to the context owner. Must be called with
// s.mu held.
func (s *Store) lookup(ctx context.Context, id string) (*entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if owner := storage.GetOwner(ctx); owner != "" && e.order.Owner != owner {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

// evictOldest removes the least recently used entry. Must be called with
// s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	s.lruList.Remove(back)
	delete(s.entries, back.Value.(string))
}
