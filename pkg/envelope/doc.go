// Package envelope frames request/response exchanges over a persistent,
// message-oriented connection.
//
// Every message is the literal marker "DPX1" followed by one serialized
// container (see package wire) holding a map. The map always carries "id",
// the correlation identifier. A request carries "method" and "path" plus the
// optional "headers", "cookies", "query" and "data". A response carries
// "status" plus the optional "headers", "cookies", "data" and "stream".
//
// For each id the valid sequence is one request, zero or more responses with
// stream=true, then exactly one terminal response. [Tracker] enforces it.
package envelope
