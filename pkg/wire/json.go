package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// JSON is the human-readable container. Integers are exact up to 53 bits,
// the range every mainstream JSON reader preserves.
var JSON Format = jsonFormat{}

type jsonFormat struct{}

func (jsonFormat) Name() string        { return "json" }
func (jsonFormat) ContentType() string { return "application/json" }

func (jsonFormat) Traits() Traits {
	return Traits{NativeBool: true, IntegerBits: 53, NativeFloat: true}
}

func (jsonFormat) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (jsonFormat) Unmarshal(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return normalizeJSON(v), nil
}

// normalizeJSON replaces json.Number with int64 where the literal is integral
// and float64 otherwise.
func normalizeJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		for i := range x {
			x[i] = normalizeJSON(x[i])
		}
		return x
	case map[string]any:
		for k, item := range x {
			x[k] = normalizeJSON(item)
		}
		return x
	}
	return v
}
