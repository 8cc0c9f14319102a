package wire

import (
	"bytes"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgPack is the second binary container, used by clients that already speak
// MessagePack.
var MsgPack Format = msgpackFormat{}

type msgpackFormat struct{}

func (msgpackFormat) Name() string        { return "msgpack" }
func (msgpackFormat) ContentType() string { return "application/msgpack" }

func (msgpackFormat) Traits() Traits {
	return Traits{NativeBool: true, IntegerBits: 64, NativeFloat: true}
}

func (msgpackFormat) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackFormat) Unmarshal(data []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	v, err := dec.DecodeInterface()
	if err != nil {
		return nil, err
	}
	return normalizeMsgPack(v)
}

// normalizeMsgPack folds unsigned integers into int64 and non-string map
// keys into strings so the tree matches the other containers.
func normalizeMsgPack(v any) (any, error) {
	switch x := v.(type) {
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", x)
		}
		return int64(x), nil
	case []any:
		for i := range x {
			n, err := normalizeMsgPack(x[i])
			if err != nil {
				return nil, err
			}
			x[i] = n
		}
		return x, nil
	case map[string]any:
		for k, item := range x {
			n, err := normalizeMsgPack(item)
			if err != nil {
				return nil, err
			}
			x[k] = n
		}
		return x, nil
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			n, err := normalizeMsgPack(item)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = n
		}
		return out, nil
	}
	return v, nil
}
