package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gopkg.in/inf.v0"
)

// Order is one placed order.
type Order struct {
	ID          string
	Owner       string
	SKU         string
	Quantity    int64
	Total       *inf.Dec
	PlacedAt    time.Time
	CancelledAt *time.Time
}

// Tree renders the order as a value tree for a response.
func (o *Order) Tree() map[string]any {
	m := map[string]any{
		"id":        o.ID,
		"owner":     o.Owner,
		"sku":       o.SKU,
		"quantity":  o.Quantity,
		"total":     o.Total,
		"placed_at": o.PlacedAt.UTC(),
	}
	if o.CancelledAt != nil {
		m["cancelled_at"] = o.CancelledAt.UTC()
	}
	return m
}

// NewOrderID returns a fresh order identifier.
func NewOrderID() string {
	return "ord_" + uuid.NewString()
}

// ListOptions controls order listing.
type ListOptions struct {
	// After is the ID of the last order of the previous page.
	After string
	// Limit is the page size, 1 to 100, default 20.
	Limit int
	// Order is "asc" or "desc" by placement time, default "desc".
	Order string
}

// PageSize clamps Limit to the accepted range.
func (o ListOptions) PageSize() int {
	switch {
	case o.Limit <= 0:
		return 20
	case o.Limit > 100:
		return 100
	}
	return o.Limit
}

// OrderList is one page of orders.
type OrderList struct {
	Data    []*Order
	HasMore bool
	FirstID string
	LastID  string
}

// Tree renders the page as a value tree for a response.
func (l *OrderList) Tree() map[string]any {
	data := make([]any, len(l.Data))
	for i, o := range l.Data {
		data[i] = o.Tree()
	}
	return map[string]any{
		"data":     data,
		"has_more": l.HasMore,
		"first_id": l.FirstID,
		"last_id":  l.LastID,
	}
}

// Page fills a list from ordered matches, applying the cursor and limit.
func Page(matches []*Order, opts ListOptions) *OrderList {
	if opts.After != "" {
		var rest []*Order
		for i, o := range matches {
			if o.ID == opts.After {
				rest = matches[i+1:]
				break
			}
		}
		matches = rest
	}

	limit := opts.PageSize()
	list := &OrderList{Data: matches, HasMore: len(matches) > limit}
	if list.HasMore {
		list.Data = matches[:limit]
	}
	if len(list.Data) > 0 {
		list.FirstID = list.Data[0].ID
		list.LastID = list.Data[len(list.Data)-1].ID
	}
	if list.Data == nil {
		list.Data = []*Order{}
	}
	return list
}

// Store persists orders. Every operation is scoped to the owner in the
// context when one is set.
type Store interface {
	// SaveOrder persists a new order. It returns ErrConflict for a
	// duplicate ID.
	SaveOrder(ctx context.Context, o *Order) error

	// GetOrder returns an order, including cancelled ones.
	GetOrder(ctx context.Context, id string) (*Order, error)

	// CancelOrder marks an order cancelled and returns it.
	CancelOrder(ctx context.Context, id string, at time.Time) (*Order, error)

	// ListOrders returns a page of orders that are not cancelled.
	ListOrders(ctx context.Context, opts ListOptions) (*OrderList, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
