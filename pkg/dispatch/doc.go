// Package dispatch binds the parameters of a resolved endpoint, invokes it
// and normalizes its outcome into a Response.
//
// Parameters are bound by name from the hydrated query merged with a
// map-shaped data payload, data winning. Unknown names are ignored in the
// default lenient mode and rejected in strict mode.
package dispatch
