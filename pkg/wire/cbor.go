package wire

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBOR is the compact binary container. Map keys are written in canonical
// order so equal trees serialize to equal bytes.
var CBOR Format = newCBORFormat()

type cborFormat struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORFormat() *cborFormat {
	enc, err := cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSignedOrFail,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return &cborFormat{enc: enc, dec: dec}
}

func (cborFormat) Name() string        { return "cbor" }
func (cborFormat) ContentType() string { return "application/cbor" }

func (cborFormat) Traits() Traits {
	return Traits{NativeBool: true, IntegerBits: 64, NativeFloat: true}
}

func (f cborFormat) Marshal(v any) ([]byte, error) {
	return f.enc.Marshal(v)
}

func (f cborFormat) Unmarshal(data []byte) (any, error) {
	var v any
	if err := f.dec.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
