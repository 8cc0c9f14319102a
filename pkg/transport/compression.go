package transport

import (
	"bytes"
	"context"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/wire"
)

// DefaultMinimumSize is the smallest body the compression interceptor
// compresses.
const DefaultMinimumSize = 500

// Compression returns middleware that gzips single-shot response bodies of
// at least minSize bytes when the caller accepts gzip. The body is
// serialized here with the exchange format, so the response leaves with raw
// bytes and explicit content headers. Partial and socket responses are left
// alone.
func Compression(minSize, level int) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *api.Request) (*api.Response, error) {
			resp, err := next.Handle(ctx, req)
			if err != nil || resp == nil || resp.Stream || resp.Data == nil {
				return resp, err
			}
			if req.Transport != api.TransportHTTP || !acceptsGzip(req.Header("accept-encoding")) {
				return resp, nil
			}
			if resp.Header("content-encoding") != "" {
				return resp, nil
			}

			body, contentType, err := serialize(resp.Data, req.Format)
			if err != nil {
				return nil, err
			}
			if len(body) < minSize {
				return resp, nil
			}

			var buf bytes.Buffer
			zw, err := gzip.NewWriterLevel(&buf, level)
			if err != nil {
				return nil, err
			}
			if _, err := zw.Write(body); err != nil {
				return nil, err
			}
			if err := zw.Close(); err != nil {
				return nil, err
			}

			out := *resp
			out.Headers = make(map[string]string, len(resp.Headers)+3)
			for k, v := range resp.Headers {
				out.Headers[k] = v
			}
			out.Data = buf.Bytes()
			out.SetHeader("content-encoding", "gzip")
			out.SetHeader("vary", "Accept-Encoding")
			if out.Header("content-type") == "" {
				out.SetHeader("content-type", contentType)
			}
			return &out, nil
		})
	}
}

// serialize renders response data the way the single-shot adapter would.
func serialize(data any, f wire.Format) ([]byte, string, error) {
	switch x := data.(type) {
	case []byte:
		return x, "application/octet-stream", nil
	case string:
		return []byte(x), "text/plain; charset=utf-8", nil
	}
	if f == nil || f == wire.Form {
		f = wire.JSON
	}
	body, err := f.Marshal(data)
	if err != nil {
		return nil, "", err
	}
	return body, f.ContentType(), nil
}

func acceptsGzip(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "gzip") && strings.TrimSpace(coding) != "*" {
			continue
		}
		if q := strings.ReplaceAll(strings.TrimSpace(params), " ", ""); q == "q=0" || q == "q=0.0" {
			return false
		}
		return true
	}
	return false
}
