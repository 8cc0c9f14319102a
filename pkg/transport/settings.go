package transport

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Reserved field names. They steer the chain itself and are not passed to
// interceptor factories.
const (
	FieldEnabled = "enabled"
	FieldRank    = "rank"
)

// Fields is the flat configuration map of one interceptor.
type Fields map[string]any

// Settings maps interceptor names to their fields, as supplied by the
// configuration provider.
type Settings map[string]Fields

// Clone returns a deep copy of s.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for name, f := range s {
		out[name] = f.clone()
	}
	return out
}

func (f Fields) clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge overlays scope on global. Entries with the same name are merged
// field by field, scope fields winning; entries present in only one of the
// two are carried over. Neither argument is modified.
func Merge(global, scope Settings) Settings {
	out := global.Clone()
	for name, f := range scope {
		base, ok := out[name]
		if !ok {
			out[name] = f.clone()
			continue
		}
		for k, v := range f {
			base[k] = v
		}
	}
	return out
}

// String returns a string field or def.
func (f Fields) String(key, def string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return def
}

// Int returns an integer field or def. Numeric strings are accepted.
func (f Fields) Int(key string, def int) int {
	switch v := f[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Float returns a floating point field or def.
func (f Fields) Float(key string, def float64) float64 {
	switch v := f[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if x, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return x
		}
	}
	return def
}

// Bool returns a boolean field or def. Strings accepted by
// strconv.ParseBool are accepted.
func (f Fields) Bool(key string, def bool) bool {
	switch v := f[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// Duration returns a duration field or def. Strings are parsed with
// time.ParseDuration; bare numbers are seconds.
func (f Fields) Duration(key string, def time.Duration) time.Duration {
	switch v := f[key].(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}

// Strings returns a list field or def. A comma separated string is split.
func (f Fields) Strings(key string, def []string) []string {
	switch v := f[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return def
}
