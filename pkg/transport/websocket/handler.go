package websocket

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rhuss/duplex/pkg/transport"
)

// Config holds per-connection limits and timings.
type Config struct {
	// ReadLimit is the maximum size of one inbound message in bytes.
	ReadLimit int64
	// MaxInFlight caps concurrent exchanges per connection; requests over
	// the cap are answered with 503 on their id.
	MaxInFlight int64
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	// CloseGrace is how long a closing connection waits for its handlers
	// to return after their contexts were cancelled.
	CloseGrace time.Duration
	// History is the number of closed ids remembered per connection.
	History int
	// AllowedOrigins lists accepted Origin header values. Empty applies the
	// same-origin check.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReadLimit:    1 << 20, // 1 MB
		MaxInFlight:  64,
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		WriteWait:    10 * time.Second,
		CloseGrace:   5 * time.Second,
	}
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// Handler upgrades HTTP requests to WebSocket connections and serves the
// envelope protocol on them.
type Handler struct {
	handler  transport.Handler
	upgrader websocket.Upgrader
	config   Config
	logger   *slog.Logger

	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewHandler creates a WebSocket endpoint in front of handler, usually a
// transport.Pipeline.
func NewHandler(handler transport.Handler, cfg Config, opts ...Option) *Handler {
	h := &Handler{
		handler: handler,
		config:  cfg,
		logger:  slog.Default(),
		conns:   make(map[*conn]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		Subprotocols:    subprotocols,
	}
	if len(cfg.AllowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return slices.Contains(cfg.AllowedOrigins, r.Header.Get("Origin"))
		}
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and serves the connection until it
// closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		h.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err.Error())
		return
	}

	c := newConn(ws, h.handler, h.config, h.logger.With("remote", r.RemoteAddr), r.RemoteAddr, inherited(r.Header))
	if !h.track(c) {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
		ws.Close()
		return
	}
	defer h.untrack(c)

	c.serve(r.Context())
}

// inheritedHeaders are copied from the handshake into every exchange of
// the connection. Browsers cannot set headers on individual messages.
var inheritedHeaders = []string{"Authorization", "X-Api-Key", "X-Capabilities", "Cookie", "Traceparent", "Tracestate"}

func inherited(h http.Header) map[string]string {
	out := make(map[string]string)
	for _, name := range inheritedHeaders {
		if v := h.Get(name); v != "" {
			out[strings.ToLower(name)] = v
		}
	}
	return out
}

// Connections returns the number of open connections.
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close closes every open connection, refuses new ones, and waits until
// their serve loops have returned.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
	h.wg.Wait()
}

func (h *Handler) track(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Handler) untrack(c *conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	h.wg.Done()
}
