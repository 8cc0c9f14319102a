package http

import (
	"mime"
	"strconv"
	"strings"

	"github.com/rhuss/duplex/pkg/wire"
)

// negotiate picks the response container from an Accept header. Wildcards
// and unknown types fall back to the request's own container, or JSON when
// the request had no body or arrived as a form.
func negotiate(accept string, in wire.Format) wire.Format {
	fallback := in
	if fallback == nil || fallback == wire.Form {
		fallback = wire.JSON
	}
	if strings.TrimSpace(accept) == "" {
		return fallback
	}

	var best wire.Format
	bestQ := 0.0
	for _, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		q := 1.0
		if v, ok := params["q"]; ok {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				q = parsed
			}
		}
		if q <= bestQ {
			continue
		}

		var f wire.Format
		switch mediaType {
		case "*/*", "application/*":
			f = fallback
		default:
			found, ok := wire.ForContentType(mediaType)
			if !ok || found == wire.Form {
				continue
			}
			f = found
		}
		best, bestQ = f, q
	}
	if best == nil {
		return fallback
	}
	return best
}
