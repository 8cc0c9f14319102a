package dispatch

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"gopkg.in/inf.v0"

	"github.com/rhuss/duplex/pkg/router"
)

// Coerce converts a hydrated value to the declared parameter type. Text is
// parsed for scalar types so plain query strings bind like typed tokens.
func Coerce(v any, t router.ParamType) (any, error) {
	switch t {
	case router.TypeAny:
		return v, nil
	case router.TypeString:
		return toString(v)
	case router.TypeInt:
		return toInt(v)
	case router.TypeFloat:
		return toFloat(v)
	case router.TypeBool:
		return toBool(v)
	case router.TypeDecimal:
		return toDecimal(v)
	case router.TypeDate:
		switch x := v.(type) {
		case civil.Date:
			return x, nil
		case string:
			return civil.ParseDate(x)
		}
	case router.TypeDateTime:
		switch x := v.(type) {
		case civil.DateTime:
			return x, nil
		case string:
			return civil.ParseDateTime(x)
		}
	case router.TypeTime:
		switch x := v.(type) {
		case civil.Time:
			return x, nil
		case string:
			return civil.ParseTime(x)
		}
	case router.TypeTimestamp:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			return time.Parse(time.RFC3339Nano, x)
		}
	case router.TypeList:
		if l, ok := v.([]any); ok {
			return l, nil
		}
	case router.TypeMap:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	case router.TypeBytes:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
	}
	return nil, mismatch(v, t)
}

func mismatch(v any, t router.ParamType) error {
	return fmt.Errorf("expected %s, got %s", t, describe(v))
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case int64, *big.Int:
		return "integer"
	case float64:
		return "float"
	case bool:
		return "boolean"
	case []any:
		return "list"
	case map[string]any:
		return "map"
	}
	return fmt.Sprintf("%T", v)
}

func toString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return nil, mismatch(v, router.TypeString)
}

// toInt yields int64, or *big.Int for integers beyond the int64 range.
func toInt(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case *big.Int:
		if x.IsInt64() {
			return x.Int64(), nil
		}
		return x, nil
	case float64:
		if x == float64(int64(x)) {
			return int64(x), nil
		}
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return n, nil
		}
		if b, ok := new(big.Int).SetString(x, 10); ok {
			return b, nil
		}
	}
	return nil, mismatch(v, router.TypeInt)
}

func toFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case *inf.Dec:
		return strconv.ParseFloat(x.String(), 64)
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err == nil {
			return f, nil
		}
	}
	return nil, mismatch(v, router.TypeFloat)
}

func toBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err == nil {
			return b, nil
		}
	}
	return nil, mismatch(v, router.TypeBool)
}

func toDecimal(v any) (any, error) {
	switch x := v.(type) {
	case *inf.Dec:
		return x, nil
	case int64:
		return inf.NewDec(x, 0), nil
	case *big.Int:
		return new(inf.Dec).SetUnscaledBig(x), nil
	case float64:
		if d, ok := new(inf.Dec).SetString(strconv.FormatFloat(x, 'f', -1, 64)); ok {
			return d, nil
		}
	case string:
		if d, ok := new(inf.Dec).SetString(x); ok {
			return d, nil
		}
	}
	return nil, mismatch(v, router.TypeDecimal)
}
