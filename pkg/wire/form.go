package wire

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// Form is the URL-encoded container used for query strings and HTML form
// bodies. It only knows text, so every non-string scalar is tagged.
var Form Format = formFormat{}

type formFormat struct{}

func (formFormat) Name() string        { return "form" }
func (formFormat) ContentType() string { return "application/x-www-form-urlencoded" }

func (formFormat) Traits() Traits {
	return Traits{}
}

var errFormShape = errors.New("form: top level value must be a map")

func (formFormat) Marshal(v any) ([]byte, error) {
	m, ok := v.(map[string]any)
	if !ok {
		if v == nil {
			return nil, nil
		}
		return nil, errFormShape
	}
	values := url.Values{}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch x := m[k].(type) {
		case []any:
			for _, item := range x {
				s, err := formScalar(k, item)
				if err != nil {
					return nil, err
				}
				values.Add(k, s)
			}
		default:
			s, err := formScalar(k, x)
			if err != nil {
				return nil, err
			}
			values.Set(k, s)
		}
	}
	return []byte(values.Encode()), nil
}

func formScalar(key string, v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}
	return "", fmt.Errorf("form: value for %q has no flat representation (%T)", key, v)
}

func (formFormat) Unmarshal(data []byte) (any, error) {
	values, err := url.ParseQuery(string(data))
	if err != nil {
		return nil, err
	}
	return FromValues(values), nil
}

// FromValues converts URL values into a tree. Keys with one value map to a
// string and repeated keys to a sequence of strings.
func FromValues(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		seq := make([]any, len(vs))
		for i, s := range vs {
			seq[i] = s
		}
		out[k] = seq
	}
	return out
}
