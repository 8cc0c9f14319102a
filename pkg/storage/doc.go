// Package storage defines the order book used by the demo shop and the
// helpers shared by its backends (memory, postgres): sentinel errors and
// owner scoping through the context.
package storage
