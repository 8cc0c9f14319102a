package wire

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
)

// DecodeError reports a malformed typed token or an unparsable container.
// Token carries the original wire text when the failure is token-level.
type DecodeError struct {
	Token string
	Path  string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("wire: cannot decode container: %v", e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("wire: cannot decode %q at %s: %v", e.Token, e.Path, e.Err)
	}
	return fmt.Sprintf("wire: cannot decode %q: %v", e.Token, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a value the codec has no wire representation for.
type EncodeError struct {
	Path string
	Type string
}

func (e *EncodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("wire: cannot encode value of type %s", e.Type)
	}
	return fmt.Sprintf("wire: cannot encode value of type %s at %s", e.Type, e.Path)
}

// Encode converts v into a tree the container f can carry without losing type
// information. Container-native values pass through unchanged; closed-set
// scalars become tagged strings. The input is never modified.
func Encode(v any, f Format) (any, error) {
	return encodeValue(v, f.Traits(), "")
}

func encodeValue(v any, tr Traits, path string) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return x, nil
	case bool:
		if tr.NativeBool {
			return x, nil
		}
		return Token{Raw: strconv.FormatBool(x), Tag: TagBool}.String(), nil
	case int:
		return encodeInt(int64(x), tr), nil
	case int8:
		return encodeInt(int64(x), tr), nil
	case int16:
		return encodeInt(int64(x), tr), nil
	case int32:
		return encodeInt(int64(x), tr), nil
	case int64:
		return encodeInt(x, tr), nil
	case uint:
		return encodeUint(uint64(x), tr), nil
	case uint8:
		return encodeInt(int64(x), tr), nil
	case uint16:
		return encodeInt(int64(x), tr), nil
	case uint32:
		return encodeInt(int64(x), tr), nil
	case uint64:
		return encodeUint(x, tr), nil
	case *big.Int:
		if x == nil {
			return nil, nil
		}
		if x.IsInt64() {
			return encodeInt(x.Int64(), tr), nil
		}
		return Token{Raw: x.String(), Tag: TagInteger}.String(), nil
	case float32:
		return encodeFloat(float64(x), tr, path)
	case float64:
		return encodeFloat(x, tr, path)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return encodeInt(n, tr), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, &EncodeError{Path: path, Type: "json.Number"}
		}
		return encodeFloat(f, tr, path)
	case []byte:
		return x, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			enc, err := encodeValue(item, tr, indexPath(path, i))
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			enc, err := encodeValue(item, tr, keyPath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = enc
		}
		return out, nil
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, s := range x {
			out[k] = s
		}
		return out, nil
	}

	if tok, ok := scalarToken(v); ok {
		return tok.String(), nil
	}
	return encodeReflect(v, tr, path)
}

// encodeReflect handles typed slices, arrays, string-keyed maps, and pointers.
func encodeReflect(v any, tr Traits, path string) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return encodeValue(rv.Elem().Interface(), tr, path)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			enc, err := encodeValue(rv.Index(i).Interface(), tr, indexPath(path, i))
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			enc, err := encodeValue(iter.Value().Interface(), tr, keyPath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = enc
		}
		return out, nil
	}
	return nil, &EncodeError{Path: path, Type: fmt.Sprintf("%T", v)}
}

func encodeInt(n int64, tr Traits) any {
	if tr.fitsInt(n) {
		return n
	}
	return Token{Raw: strconv.FormatInt(n, 10), Tag: TagInteger}.String()
}

func encodeUint(n uint64, tr Traits) any {
	if n <= math.MaxInt64 {
		return encodeInt(int64(n), tr)
	}
	return Token{Raw: strconv.FormatUint(n, 10), Tag: TagInteger}.String()
}

// encodeFloat renders a float for a text-only container as a decimal token
// holding the shortest text that round-trips the value, so it decodes as a
// number rather than a string. NaN and infinities have no decimal form.
func encodeFloat(f float64, tr Traits, path string) (any, error) {
	if tr.NativeFloat {
		return f, nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &EncodeError{Path: path, Type: "float64 " + strconv.FormatFloat(f, 'g', -1, 64)}
	}
	return Token{Raw: strconv.FormatFloat(f, 'f', -1, 64), Tag: TagDecimal}.String(), nil
}

// Decode hydrates a container tree: every string with the token shape is
// replaced by its typed value, recursively through sequences and maps. Tokens
// with a tag outside the closed set, or with an unparsable value, yield a
// *DecodeError carrying the original token. The input is never modified.
func Decode(v any) (any, error) {
	return decodeValue(v, "")
}

// DecodeString hydrates a single text value.
func DecodeString(s string) (any, error) {
	return decodeValue(s, "")
}

func decodeValue(v any, path string) (any, error) {
	switch x := v.(type) {
	case string:
		tok, ok := ParseToken(x)
		if !ok {
			return x, nil
		}
		if !tok.Tag.Known() {
			return nil, &DecodeError{Token: x, Path: path, Err: fmt.Errorf("unknown type tag %q", string(tok.Tag))}
		}
		val, err := parseScalar(tok)
		if err != nil {
			return nil, &DecodeError{Token: x, Path: path, Err: err}
		}
		return val, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			dec, err := decodeValue(item, indexPath(path, i))
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			dec, err := decodeValue(item, keyPath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = dec
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			key := fmt.Sprint(k)
			dec, err := decodeValue(item, keyPath(path, key))
			if err != nil {
				return nil, err
			}
			out[key] = dec
		}
		return out, nil
	}
	return v, nil
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

func keyPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
