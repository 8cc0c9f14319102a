package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/envelope"
	"github.com/rhuss/duplex/pkg/wire"
)

// ErrConnectionClosed is returned for exchanges still waiting when the
// connection drops.
var ErrConnectionClosed = errors.New("websocket: connection closed")

// ErrClientClosed is returned by a Client after Close.
var ErrClientClosed = errors.New("websocket: client closed")

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithFormat selects the container for outbound messages. The matching
// subprotocol is requested during the handshake.
func WithFormat(f wire.Format) ClientOption {
	return func(c *Client) { c.format = f }
}

// WithHeader adds handshake headers, for example credentials.
func WithHeader(h http.Header) ClientOption {
	return func(c *Client) { c.header = h.Clone() }
}

// WithBackOff sets the reconnect policy. newBackOff is called once per
// connection attempt sequence.
func WithBackOff(newBackOff func() backoff.BackOff) ClientOption {
	return func(c *Client) { c.newBackOff = newBackOff }
}

// WithClientLogger sets the structured logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// Client sends requests over one WebSocket connection and matches
// responses to them by correlation id. A dropped connection is re-dialed
// with backoff by the next call; exchanges in flight on the dropped
// connection fail with ErrConnectionClosed.
type Client struct {
	url        string
	dialer     *websocket.Dialer
	header     http.Header
	format     wire.Format
	newBackOff func() backoff.BackOff
	logger     *slog.Logger

	mu     sync.Mutex
	cur    *clientConn
	closed bool
}

// NewClient creates a client for url. No connection is made until the
// first call.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		format: wire.JSON,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dialer.Subprotocols = []string{subprotocolFor(c.format)}
	return c
}

// Do sends req and waits for its terminal response. Partial responses are
// discarded.
func (c *Client) Do(ctx context.Context, req *api.Request) (*api.Response, error) {
	return c.Stream(ctx, req, nil)
}

// Stream sends req, calls fn for every partial response, and returns the
// terminal response. An error returned by fn abandons the exchange.
func (c *Client) Stream(ctx context.Context, req *api.Request, fn func(*api.Response) error) (*api.Response, error) {
	cc, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}

	p, err := cc.start(req, c.format)
	if err != nil {
		return nil, err
	}
	defer cc.finish(req.ID(), p)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-cc.done:
			return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, cc.cause())
		case resp := <-p.ch:
			if !resp.Stream {
				return resp, nil
			}
			if fn != nil {
				if err := fn(resp); err != nil {
					return nil, err
				}
			}
		}
	}
}

// Close closes the connection. In-flight calls fail with
// ErrConnectionClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	cc := c.cur
	c.cur = nil
	c.mu.Unlock()

	if cc == nil {
		return nil
	}
	return cc.close()
}

// connection returns the live connection, dialing with backoff when there
// is none.
func (c *Client) connection(ctx context.Context) (*clientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if c.cur != nil && !c.cur.isDone() {
		return c.cur, nil
	}

	var ws *websocket.Conn
	attempt := 0
	dial := func() error {
		attempt++
		conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(fmt.Errorf("websocket handshake rejected: %s", resp.Status))
			}
			return err
		}
		ws = conn
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("websocket dial failed, retrying",
			"url", c.url, "attempt", attempt, "wait", wait, "error", err.Error())
	}
	if err := backoff.RetryNotify(dial, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		return nil, err
	}

	c.cur = newClientConn(ws, c.logger)
	return c.cur, nil
}

// pending is one exchange waiting for responses.
type pending struct {
	ch   chan *api.Response
	quit chan struct{}
}

// clientConn is one dialed connection and its read loop.
type clientConn struct {
	ws      *websocket.Conn
	format  wire.Format
	tracker *envelope.Tracker
	logger  *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]*pending
	err     error
	done    chan struct{}
	stopped chan struct{}
}

func newClientConn(ws *websocket.Conn, logger *slog.Logger) *clientConn {
	cc := &clientConn{
		ws:      ws,
		format:  formatFor(ws.Subprotocol()),
		tracker: envelope.NewTracker(0),
		logger:  logger,
		pending: make(map[string]*pending),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go cc.readLoop()
	return cc
}

func (cc *clientConn) start(req *api.Request, f wire.Format) (*pending, error) {
	if f != cc.format {
		// The server did not accept the requested subprotocol.
		f = cc.format
	}
	data, err := envelope.Marshal(envelope.FromRequest(req), f)
	if err != nil {
		return nil, err
	}

	p := &pending{ch: make(chan *api.Response, 8), quit: make(chan struct{})}
	cc.mu.Lock()
	if cc.err != nil {
		cc.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, cc.err)
	}
	if err := cc.tracker.Observe(req.ID(), api.MessageRequest); err != nil {
		cc.mu.Unlock()
		return nil, err
	}
	cc.pending[req.ID()] = p
	cc.mu.Unlock()

	cc.writeMu.Lock()
	err = cc.ws.WriteMessage(frameType(f), data)
	cc.writeMu.Unlock()
	if err != nil {
		cc.finish(req.ID(), p)
		return nil, err
	}
	return p, nil
}

func (cc *clientConn) finish(id string, p *pending) {
	cc.mu.Lock()
	if cc.pending[id] == p {
		delete(cc.pending, id)
	}
	cc.mu.Unlock()
	close(p.quit)
}

func (cc *clientConn) readLoop() {
	defer close(cc.stopped)
	for {
		mt, data, err := cc.ws.ReadMessage()
		if err != nil {
			cc.fail(err)
			return
		}
		cc.receive(mt, data)
	}
}

// receive delivers one inbound response to its waiting exchange. Messages
// that break the sequence of their id are dropped.
func (cc *clientConn) receive(mt int, data []byte) {
	msg, err := envelope.Parse(data, frameFormat(mt, cc.format))
	if err != nil {
		cc.logger.Warn("malformed envelope from server", "error", err.Error())
		return
	}
	if msg.IsRequest() {
		cc.logger.Warn("protocol violation: request sent by server", "id", msg.ID)
		return
	}
	if err := cc.tracker.Observe(msg.ID, msg.Kind()); err != nil {
		cc.logger.Warn("protocol violation", "id", msg.ID, "error", err.Error())
		return
	}

	cc.mu.Lock()
	p := cc.pending[msg.ID]
	cc.mu.Unlock()
	if p == nil {
		return
	}
	select {
	case p.ch <- msg.Response():
	case <-p.quit:
	case <-cc.done:
	}
}

func (cc *clientConn) fail(err error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.err == nil {
		cc.err = err
		close(cc.done)
	}
}

func (cc *clientConn) cause() error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.err
}

func (cc *clientConn) isDone() bool {
	select {
	case <-cc.done:
		return true
	default:
		return false
	}
}

func (cc *clientConn) close() error {
	cc.writeMu.Lock()
	err := cc.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	cc.writeMu.Unlock()

	select {
	case <-cc.stopped:
	case <-time.After(time.Second):
	}
	cc.ws.Close()
	<-cc.stopped
	cc.fail(ErrClientClosed)
	return err
}
