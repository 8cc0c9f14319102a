package api

import (
	"regexp"

	"github.com/google/uuid"
)

const maxCorrelationIDLength = 128

// correlationIDPattern accepts printable ASCII without spaces, so ids can be
// echoed in headers and logs unchanged.
var correlationIDPattern = regexp.MustCompile(`^[\x21-\x7e]+$`)

// NewCorrelationID generates a random correlation id for exchanges whose
// caller did not supply one.
func NewCorrelationID() string {
	return uuid.NewString()
}

// ValidateCorrelationID checks whether id can be used as a correlation id:
// non-empty, at most 128 bytes of printable ASCII without spaces.
func ValidateCorrelationID(id string) bool {
	if len(id) == 0 || len(id) > maxCorrelationIDLength {
		return false
	}
	return correlationIDPattern.MatchString(id)
}
