package wire

import (
	"strings"
)

// Delimiter separates the canonical text of a value from its type tag.
const Delimiter = "::"

// Tag identifies the scalar type of a text-encoded wire value.
type Tag string

// The closed set of type tags.
const (
	TagDecimal       Tag = "N"
	TagDate          Tag = "D"
	TagDateTime      Tag = "DH"
	TagDateTimeZoned Tag = "DHZ"
	TagTime          Tag = "T"
	TagInteger       Tag = "L"
	TagBool          Tag = "B"
)

// knownTags is the closed tag set. It is never modified after init.
var knownTags = map[Tag]bool{
	TagDecimal:       true,
	TagDate:          true,
	TagDateTime:      true,
	TagDateTimeZoned: true,
	TagTime:          true,
	TagInteger:       true,
	TagBool:          true,
}

// Known reports whether t belongs to the closed tag set.
func (t Tag) Known() bool {
	return knownTags[t]
}

// Token is a scalar rendered as text plus its type tag.
type Token struct {
	Raw string
	Tag Tag
}

// String renders the token in its wire form, e.g. "99.50::N".
func (t Token) String() string {
	return t.Raw + Delimiter + string(t.Tag)
}

// Value parses the token back into its Go value.
func (t Token) Value() (any, error) {
	return parseScalar(t)
}

// ParseToken splits s into raw value and tag when s has the token shape
// "<value>::<TAG>", where TAG is one to three upper-case ASCII letters.
// The tag is not checked against the closed set here; Decode does that so
// that unknown tags surface as a DecodeError rather than as plain strings.
func ParseToken(s string) (Token, bool) {
	i := strings.LastIndex(s, Delimiter)
	if i < 0 {
		return Token{}, false
	}
	tag := s[i+len(Delimiter):]
	if len(tag) == 0 || len(tag) > 3 {
		return Token{}, false
	}
	for j := 0; j < len(tag); j++ {
		if tag[j] < 'A' || tag[j] > 'Z' {
			return Token{}, false
		}
	}
	return Token{Raw: s[:i], Tag: Tag(tag)}, true
}
