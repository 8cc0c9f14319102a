package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks the exchanges of one connection that have not
// produced their terminal response yet. It maps correlation ids to their
// cancel functions so a closing connection can cancel every open exchange.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{
		entries: make(map[string]context.CancelFunc),
	}
}

// Register adds an in-flight exchange to the registry. It reports false,
// and registers nothing, when id is already in flight.
func (r *InFlightRegistry) Register(id string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return false
	}
	r.entries[id] = cancel
	return true
}

// Cancel cancels an in-flight exchange by calling its cancel function.
// Returns true if the exchange was found and cancelled, false if the ID
// was not registered (either already completed or never existed).
func (r *InFlightRegistry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.entries[id]
	if !ok {
		return false
	}
	cancel()
	delete(r.entries, id)
	return true
}

// CancelAll cancels every in-flight exchange and returns how many there
// were.
func (r *InFlightRegistry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	for id, cancel := range r.entries {
		cancel()
		delete(r.entries, id)
	}
	return n
}

// Remove removes an exchange from the registry without cancelling it.
// Called when an exchange completes normally.
func (r *InFlightRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of in-flight exchanges.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
