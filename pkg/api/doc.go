// Package api defines the transport-neutral exchange model of the duplex
// service: the Request and Response every adapter produces and consumes, the
// caller tag sets used for authorization, the exchange phases that govern
// streamed replies, correlation identifiers, and the error taxonomy.
//
// The package performs no I/O. Payloads carried by Request and Response are
// already hydrated trees as produced by package wire.
//
// Core types:
//   - [Request]: one inbound exchange with an immutable correlation id
//   - [Response]: status, headers, cookies, payload and stream flag
//   - [TagSet]: caller tags or capabilities presented to the router
//   - [Error]: structured error with kind, code, param and message
//   - [ExchangePhase]: per-correlation-id lifecycle of a persistent exchange
package api
