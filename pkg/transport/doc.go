// Package transport defines the handler contract and the middleware chain
// every exchange passes through, whichever wire transport it arrived on.
//
// # Handler
//
// A [Handler] turns one [api.Request] into one [api.Response]. The
// dispatcher is the innermost handler; transport adapters call the outermost
// one. Streamed partial responses bypass the chain and are delivered through
// the stream sink the adapter installs in the context.
//
// # Middleware
//
// [Middleware] wraps a Handler. An interceptor may short-circuit by
// returning a response without calling next, may mutate a clone of the
// request before calling next, and may post-process the response next
// returns. Errors propagate outward until the errors interceptor, placed at
// the outermost rank, converts them into a response exactly once.
//
// # Catalog and Pipeline
//
// Interceptors are registered in a [Catalog] as [Definition] values with a
// name, a rank (lower is outer), a default-enabled flag and default fields.
// [Settings] from configuration enable, disable, re-rank and configure
// them; per-namespace settings are merged over the global ones with
// [Merge]. A [Pipeline] holds the built chains as an immutable snapshot and
// replaces it atomically on reconfiguration.
package transport
