package wire

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"gopkg.in/inf.v0"
)

// zonedLayout always renders a numeric offset so UTC values read "+00:00"
// instead of "Z". Parsing accepts both through time.RFC3339Nano.
const zonedLayout = "2006-01-02T15:04:05.999999999-07:00"

var (
	errBadDecimal = errors.New("not a decimal")
	errBadBool    = errors.New("not a boolean")
)

// scalarToken renders a value from the closed type set as a token. The second
// result is false when v is not a closed-set value at all; ints and bools are
// reported by the caller because their tagging depends on the container traits.
func scalarToken(v any) (Token, bool) {
	switch x := v.(type) {
	case *inf.Dec:
		if x == nil {
			return Token{}, false
		}
		return Token{Raw: x.String(), Tag: TagDecimal}, true
	case inf.Dec:
		return Token{Raw: x.String(), Tag: TagDecimal}, true
	case civil.Date:
		return Token{Raw: x.String(), Tag: TagDate}, true
	case civil.DateTime:
		return Token{Raw: x.String(), Tag: TagDateTime}, true
	case civil.Time:
		return Token{Raw: x.String(), Tag: TagTime}, true
	case time.Time:
		return Token{Raw: x.Format(zonedLayout), Tag: TagDateTimeZoned}, true
	case *time.Time:
		if x == nil {
			return Token{}, false
		}
		return Token{Raw: x.Format(zonedLayout), Tag: TagDateTimeZoned}, true
	}
	return Token{}, false
}

// parseScalar converts a token into its Go value.
func parseScalar(t Token) (any, error) {
	switch t.Tag {
	case TagDecimal:
		d, ok := new(inf.Dec).SetString(t.Raw)
		if !ok {
			return nil, errBadDecimal
		}
		return d, nil
	case TagDate:
		return civil.ParseDate(t.Raw)
	case TagDateTime:
		return civil.ParseDateTime(t.Raw)
	case TagDateTimeZoned:
		return time.Parse(time.RFC3339Nano, t.Raw)
	case TagTime:
		return civil.ParseTime(t.Raw)
	case TagInteger:
		return parseInteger(t.Raw)
	case TagBool:
		b, err := strconv.ParseBool(t.Raw)
		if err != nil {
			return nil, errBadBool
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown type tag %q", string(t.Tag))
}

// parseInteger returns an int64 when the value fits and a *big.Int otherwise.
func parseInteger(s string) (any, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return n, nil
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
		b, ok := new(big.Int).SetString(s, 10)
		if ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("not an integer: %w", err)
}
