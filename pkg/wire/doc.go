// Package wire implements the typed token codec and the container formats
// that carry it.
//
// Structured-text containers such as JSON cannot represent arbitrary precision
// decimals, calendar dates, naive datetimes, or times of day. The codec renders
// those values as text followed by a two-character delimiter and a short type
// tag, so they survive any container that can carry a string:
//
//	99.50::N                     decimal (*inf.Dec, scale preserved)
//	2025-01-15::D                date (civil.Date)
//	2025-01-15T10:30:00::DH      naive datetime (civil.DateTime)
//	2025-01-15T10:30:00+01:00::DHZ  zone-aware datetime (time.Time)
//	10:30:00::T                  time of day (civil.Time)
//	42::L                        integer outside the container's native range
//	true::B                      boolean, for containers without native booleans
//
// The tag set is closed. Values that a container already carries natively pass
// through untouched, so encoding is idempotent for native values. A container
// without a float type, such as the URL form, carries floats as decimal tokens
// ("1.5::N"), so they decode as *inf.Dec. NaN and infinities cannot be encoded
// there.
//
// # Formats
//
// A [Format] is a container syntax (JSON, CBOR, MessagePack, URL form). Every
// format shares the same tag semantics; formats differ only in their [Traits],
// which decide whether a boolean or a large integer needs a tag. Formats are
// looked up by name or by content type so the container can be negotiated per
// exchange rather than hardcoded.
package wire
