package envelope

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/wire"
)

// Marker prefixes every envelope message.
const Marker = "DPX1"

var marker = []byte(Marker)

// Message is one decoded envelope. Exactly one of the request field set
// (Method and Path) or the response field set (Status) is populated.
type Message struct {
	ID string

	Method  string
	Path    string
	Query   map[string]any
	Cookies map[string]string

	Status     int
	Stream     bool
	SetCookies []api.Cookie

	Headers map[string]string
	Data    any
}

// IsRequest reports whether m carries the request field set.
func (m *Message) IsRequest() bool { return m.Status == 0 }

// Kind classifies the message for exchange phase tracking.
func (m *Message) Kind() api.MessageKind {
	switch {
	case m.IsRequest():
		return api.MessageRequest
	case m.Stream:
		return api.MessagePartial
	}
	return api.MessageTerminal
}

// Parse decodes one envelope serialized with f. Query and data trees are
// hydrated through the type codec. Marker, shape and sequencing problems
// yield an envelope error; unparsable containers and malformed tokens yield
// a decode error.
func Parse(data []byte, f wire.Format) (*Message, error) {
	raw, err := container(data, f)
	if err != nil {
		return nil, err
	}

	id, ok := raw["id"].(string)
	if !ok || id == "" {
		return nil, api.NewEnvelopeError("missing_id", "envelope has no correlation id")
	}
	if !api.ValidateCorrelationID(id) {
		return nil, api.NewEnvelopeError("invalid_id", fmt.Sprintf("invalid correlation id %q", id))
	}

	m := &Message{ID: id}
	_, hasMethod := raw["method"]
	_, hasPath := raw["path"]
	_, hasStatus := raw["status"]

	switch {
	case hasStatus && (hasMethod || hasPath):
		return nil, malformed("envelope carries both request and response fields")
	case hasStatus:
		if err := m.parseResponse(raw); err != nil {
			return nil, err
		}
	case hasMethod && hasPath:
		if err := m.parseRequest(raw); err != nil {
			return nil, err
		}
	default:
		return nil, malformed("envelope carries neither method and path nor status")
	}

	if h, ok := raw["headers"]; ok {
		headers, err := stringMap("headers", h)
		if err != nil {
			return nil, err
		}
		m.Headers = lowerKeys(headers)
	}

	if d, ok := raw["data"]; ok {
		hydrated, err := wire.Decode(d)
		if err != nil {
			return nil, decodeError(err)
		}
		m.Data = hydrated
	}
	return m, nil
}

func (m *Message) parseRequest(raw map[string]any) error {
	method, ok := raw["method"].(string)
	if !ok || method == "" {
		return malformed("method must be a non-empty string")
	}
	path, ok := raw["path"].(string)
	if !ok || path == "" {
		return malformed("path must be a non-empty string")
	}
	m.Method = method
	m.Path = path

	if c, ok := raw["cookies"]; ok {
		cookies, err := stringMap("cookies", c)
		if err != nil {
			return err
		}
		m.Cookies = cookies
	}
	if q, ok := raw["query"]; ok && q != nil {
		qm, ok := q.(map[string]any)
		if !ok {
			return malformed("query must be a map")
		}
		hydrated, err := wire.Decode(qm)
		if err != nil {
			return decodeError(err)
		}
		m.Query = hydrated.(map[string]any)
	}
	return nil
}

func (m *Message) parseResponse(raw map[string]any) error {
	status, ok := asInt(raw["status"])
	if !ok || status < 100 || status > 599 {
		return malformed("status must be an integer between 100 and 599")
	}
	m.Status = status

	if s, ok := raw["stream"]; ok && s != nil {
		stream, ok := s.(bool)
		if !ok {
			hydrated, err := wire.Decode(s)
			if err != nil {
				return decodeError(err)
			}
			if stream, ok = hydrated.(bool); !ok {
				return malformed("stream must be a boolean")
			}
		}
		m.Stream = stream
	}

	if c, ok := raw["cookies"]; ok && c != nil {
		list, ok := c.([]any)
		if !ok {
			return malformed("response cookies must be a sequence")
		}
		for _, item := range list {
			cm, ok := item.(map[string]any)
			if !ok {
				return malformed("response cookie must be a map")
			}
			cookie, err := parseCookie(cm)
			if err != nil {
				return err
			}
			m.SetCookies = append(m.SetCookies, cookie)
		}
	}
	return nil
}

// Marshal serializes m with f, prefixed by the marker. Query and data trees
// are passed through the type codec.
func Marshal(m *Message, f wire.Format) ([]byte, error) {
	if m.ID == "" {
		return nil, errors.New("envelope: message has no id")
	}
	out := map[string]any{"id": m.ID}
	if m.IsRequest() {
		out["method"] = m.Method
		out["path"] = m.Path
		if len(m.Cookies) > 0 {
			out["cookies"] = anyMap(m.Cookies)
		}
		if len(m.Query) > 0 {
			q, err := wire.Encode(m.Query, f)
			if err != nil {
				return nil, err
			}
			out["query"] = q
		}
	} else {
		status, err := wire.Encode(int64(m.Status), f)
		if err != nil {
			return nil, err
		}
		out["status"] = status
		if m.Stream {
			stream, err := wire.Encode(true, f)
			if err != nil {
				return nil, err
			}
			out["stream"] = stream
		}
		if len(m.SetCookies) > 0 {
			out["cookies"] = cookieList(m.SetCookies)
		}
	}
	if len(m.Headers) > 0 {
		out["headers"] = anyMap(m.Headers)
	}
	if m.Data != nil {
		d, err := wire.Encode(m.Data, f)
		if err != nil {
			return nil, err
		}
		out["data"] = d
	}

	body, err := f.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	buf := make([]byte, 0, len(marker)+len(body))
	buf = append(buf, marker...)
	return append(buf, body...), nil
}

// PeekID extracts the correlation id from a message that may not parse
// fully, so a best-effort error reply can be addressed. It returns "" when
// no usable id is present.
func PeekID(data []byte, f wire.Format) string {
	raw, err := container(data, f)
	if err != nil {
		return ""
	}
	id, _ := raw["id"].(string)
	if !api.ValidateCorrelationID(id) {
		return ""
	}
	return id
}

func container(data []byte, f wire.Format) (map[string]any, error) {
	if !bytes.HasPrefix(data, marker) {
		return nil, api.NewEnvelopeError("missing_marker", "message does not start with the envelope marker")
	}
	tree, err := f.Unmarshal(data[len(marker):])
	if err != nil {
		return nil, api.NewDecodeError(fmt.Sprintf("unparsable %s container", f.Name()), err)
	}
	raw, ok := tree.(map[string]any)
	if !ok {
		return nil, malformed("envelope container must be a map")
	}
	return raw, nil
}

func malformed(msg string) *api.Error {
	return api.NewEnvelopeError("malformed_envelope", msg)
}

func decodeError(err error) *api.Error {
	return api.NewDecodeError(err.Error(), err)
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int64:
		return int(x), true
	case float64:
		if x == float64(int(x)) {
			return int(x), true
		}
	case string:
		hydrated, err := wire.DecodeString(x)
		if err != nil {
			return 0, false
		}
		if n, ok := hydrated.(int64); ok {
			return int(n), true
		}
	}
	return 0, false
}

func stringMap(field string, v any) (map[string]string, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, malformed(field + " must be a map")
	}
	out := make(map[string]string, len(m))
	for k, item := range m {
		s, ok := item.(string)
		if !ok {
			return nil, malformed(fmt.Sprintf("%s value for %q must be a string", field, k))
		}
		out[k] = s
	}
	return out, nil
}

func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

func anyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cookieList(cookies []api.Cookie) []any {
	sorted := append([]api.Cookie(nil), cookies...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	out := make([]any, 0, len(sorted))
	for _, c := range sorted {
		cm := map[string]any{"name": c.Name, "value": c.Value}
		if c.Path != "" {
			cm["path"] = c.Path
		}
		if c.Domain != "" {
			cm["domain"] = c.Domain
		}
		if c.MaxAge != 0 {
			cm["max_age"] = int64(c.MaxAge)
		}
		if c.Secure {
			cm["secure"] = true
		}
		if c.HTTPOnly {
			cm["http_only"] = true
		}
		out = append(out, cm)
	}
	return out
}

func parseCookie(m map[string]any) (api.Cookie, error) {
	hydrated, err := wire.Decode(m)
	if err != nil {
		return api.Cookie{}, decodeError(err)
	}
	m = hydrated.(map[string]any)
	name, _ := m["name"].(string)
	if name == "" {
		return api.Cookie{}, malformed("cookie has no name")
	}
	c := api.Cookie{Name: name}
	c.Value, _ = m["value"].(string)
	c.Path, _ = m["path"].(string)
	c.Domain, _ = m["domain"].(string)
	if n, ok := asInt(m["max_age"]); ok {
		c.MaxAge = n
	}
	c.Secure, _ = m["secure"].(bool)
	c.HTTPOnly, _ = m["http_only"].(bool)
	return c, nil
}
