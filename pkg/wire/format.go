package wire

import (
	"fmt"
	"mime"
	"sort"
	"strings"
	"sync"
)

// Traits describes which values a container carries natively. The codec
// tags everything else.
type Traits struct {
	// NativeBool is true when the container has a boolean type.
	NativeBool bool
	// IntegerBits is the width of integers the container round-trips
	// exactly. Zero means integers are always tagged.
	IntegerBits int
	// NativeFloat is true when the container has a floating point type.
	NativeFloat bool
}

func (t Traits) fitsInt(n int64) bool {
	switch {
	case t.IntegerBits <= 0:
		return false
	case t.IntegerBits >= 64:
		return true
	}
	limit := int64(1)<<t.IntegerBits - 1
	return n >= -limit && n <= limit
}

// Format is a container format able to carry an encoded tree.
type Format interface {
	// Name is the short identifier used in configuration and subprotocols.
	Name() string
	// ContentType is the media type used on the single-shot transport.
	ContentType() string
	// Marshal serializes an already encoded tree.
	Marshal(v any) ([]byte, error)
	// Unmarshal parses data into a tree of nil, bool, int64, float64,
	// string, []byte, []any and map[string]any. Tokens are not hydrated.
	Unmarshal(data []byte) (any, error)
	// Traits reports the native value set of the container.
	Traits() Traits
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Format{}
)

// Register makes a format available to Lookup and ForContentType. Registering
// a name twice replaces the previous format.
func Register(f Format) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[f.Name()] = f
}

// Lookup returns the format registered under name.
func Lookup(name string) (Format, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[strings.ToLower(name)]
	return f, ok
}

// ForContentType returns the format serving the given media type. Parameters
// such as charset are ignored.
func ForContentType(ct string) (Format, bool) {
	if ct == "" {
		return nil, false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return nil, false
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, f := range registry {
		if f.ContentType() == mt {
			return f, true
		}
	}
	return nil, false
}

// Names lists the registered format names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Marshal encodes v for f and serializes it.
func Marshal(f Format, v any) ([]byte, error) {
	tree, err := Encode(v, f)
	if err != nil {
		return nil, err
	}
	return f.Marshal(tree)
}

// Unmarshal parses data with f and hydrates every token in the result.
func Unmarshal(f Format, data []byte) (any, error) {
	tree, err := f.Unmarshal(data)
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%s: %w", f.Name(), err)}
	}
	return Decode(tree)
}

func init() {
	Register(JSON)
	Register(CBOR)
	Register(MsgPack)
	Register(Form)
}
