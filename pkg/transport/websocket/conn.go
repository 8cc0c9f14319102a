package websocket

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/debug"
	"github.com/rhuss/duplex/pkg/envelope"
	"github.com/rhuss/duplex/pkg/transport"
	"github.com/rhuss/duplex/pkg/wire"
)

// conn serves one upgraded connection.
type conn struct {
	ws      *websocket.Conn
	handler transport.Handler
	config  Config
	logger  *slog.Logger
	remote  string
	format  wire.Format
	// headers are taken from the handshake and apply to every exchange
	// whose envelope does not set them.
	headers map[string]string

	tracker  *envelope.Tracker
	inflight *transport.InFlightRegistry
	sem      *semaphore.Weighted
	wg       sync.WaitGroup

	writeMu sync.Mutex
}

func newConn(ws *websocket.Conn, handler transport.Handler, cfg Config, logger *slog.Logger, remote string, headers map[string]string) *conn {
	limit := cfg.MaxInFlight
	if limit <= 0 {
		limit = math.MaxInt64
	}
	return &conn{
		ws:       ws,
		handler:  handler,
		config:   cfg,
		logger:   logger,
		remote:   remote,
		format:   formatFor(ws.Subprotocol()),
		headers:  headers,
		tracker:  envelope.NewTracker(cfg.History),
		inflight: transport.NewInFlightRegistry(),
		sem:      semaphore.NewWeighted(limit),
	}
}

// serve runs the read loop until the connection fails or closes, then
// cancels every open exchange and waits for their handlers within the
// close grace.
func (c *conn) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if c.config.ReadLimit > 0 {
		c.ws.SetReadLimit(c.config.ReadLimit)
	}
	if c.config.PongWait > 0 {
		c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait))
		})
	}

	debug.Log(debug.WebSocket, "connection opened", "remote", c.remote, "format", c.format.Name())

	done := make(chan struct{})
	var pinger sync.WaitGroup
	if c.config.PingInterval > 0 {
		pinger.Add(1)
		go func() {
			defer pinger.Done()
			c.ping(done)
		}()
	}

	c.readLoop(ctx)

	close(done)
	pinger.Wait()

	if n := c.inflight.CancelAll(); n > 0 {
		debug.Log(debug.WebSocket, "cancelled open exchanges", "remote", c.remote, "count", n)
	}
	if !c.waitHandlers(c.config.CloseGrace) {
		c.logger.Warn("handlers still running after connection close",
			"open", c.inflight.Len(), "grace", c.config.CloseGrace)
	}
	c.ws.Close()
	debug.Log(debug.WebSocket, "connection closed", "remote", c.remote)
}

func (c *conn) readLoop(ctx context.Context) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read failed", "error", err.Error())
			}
			return
		}
		debug.Frame(debug.WebSocket, "in", data, mt == websocket.TextMessage)
		c.receive(ctx, mt, data)
	}
}

// receive handles one inbound frame. Malformed envelopes get a best effort
// error reply when their id can be recovered and is not in use; sequence
// violations are dropped.
func (c *conn) receive(ctx context.Context, mt int, data []byte) {
	f := frameFormat(mt, c.format)

	msg, err := envelope.Parse(data, f)
	if err != nil {
		id := envelope.PeekID(data, f)
		c.logger.Warn("malformed envelope", "id", id, "error", err.Error())
		if id != "" && c.tracker.Phase(id) == api.PhaseIdle {
			if err := c.write(id, transport.ErrorResponse(err), f); err != nil {
				debug.Log(debug.WebSocket, "error reply not delivered", "id", id, "error", err.Error())
			}
		}
		return
	}

	if !msg.IsRequest() {
		c.logger.Warn("protocol violation: response sent by peer", "id", msg.ID)
		return
	}
	if err := c.tracker.Observe(msg.ID, api.MessageRequest); err != nil {
		c.logger.Warn("protocol violation", "id", msg.ID, "error", err.Error())
		return
	}

	if !c.sem.TryAcquire(1) {
		resp := transport.ErrorResponse(api.NewUnavailableError(api.CodeOverloaded, "too many exchanges in flight"))
		if err := c.send(msg.ID, resp, f); err != nil {
			debug.Log(debug.WebSocket, "overload reply not delivered", "id", msg.ID, "error", err.Error())
		}
		return
	}

	req := msg.Request(f, c.remote)
	for name, value := range c.headers {
		if req.Header(name) == "" {
			req.SetHeader(name, value)
		}
	}
	req.DeclareCapabilities()
	exCtx, cancel := context.WithCancel(ctx)
	c.inflight.Register(req.ID(), cancel)
	c.wg.Add(1)
	go c.exchange(exCtx, cancel, req, f)
}

// exchange runs one request through the handler and sends its partial and
// terminal responses.
func (c *conn) exchange(ctx context.Context, cancel context.CancelFunc, req *api.Request, f wire.Format) {
	defer c.wg.Done()
	defer c.sem.Release(1)
	defer c.inflight.Remove(req.ID())
	defer cancel()

	id := req.ID()
	ctx = api.ContextWithStreamSink(ctx, func(resp *api.Response) error {
		partial := *resp
		partial.Stream = true
		return c.send(id, &partial, f)
	})

	resp, err := c.handler.Handle(ctx, req)
	if err != nil {
		resp = transport.ErrorResponse(err)
	}
	if resp == nil {
		resp = api.NewResponse(http.StatusNoContent, nil)
	}
	terminal := *resp
	terminal.Stream = false

	err = c.send(id, &terminal, f)
	if err != nil && c.tracker.Phase(id) != api.PhaseClosed {
		err = c.send(id, transport.ErrorResponse(api.NewHandlerError(err)), f)
	}
	if err != nil {
		debug.Log(debug.WebSocket, "terminal response not delivered", "id", id, "error", err.Error())
	}
}

// send serializes resp, records it in the tracker and writes it. A message
// that cannot be serialized leaves the exchange state unchanged.
func (c *conn) send(id string, resp *api.Response, f wire.Format) error {
	data, err := envelope.Marshal(envelope.FromResponse(id, resp), f)
	if err != nil {
		return err
	}
	if err := c.tracker.Observe(id, resp.Kind()); err != nil {
		return err
	}
	return c.writeFrame(f, data)
}

// write sends resp without touching the tracker.
func (c *conn) write(id string, resp *api.Response, f wire.Format) error {
	data, err := envelope.Marshal(envelope.FromResponse(id, resp), f)
	if err != nil {
		return err
	}
	return c.writeFrame(f, data)
}

func (c *conn) writeFrame(f wire.Format, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(c.deadline())
	mt := frameType(f)
	debug.Frame(debug.WebSocket, "out", data, mt == websocket.TextMessage)
	return c.ws.WriteMessage(mt, data)
}

func (c *conn) ping(done <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, c.deadline()); err != nil {
				debug.Log(debug.WebSocket, "ping failed", "remote", c.remote, "error", err.Error())
				return
			}
		}
	}
}

// closeWith sends a close frame and closes the connection, which ends the
// read loop.
func (c *conn) closeWith(code int, text string) {
	c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), c.deadline())
	c.ws.Close()
}

func (c *conn) deadline() time.Time {
	if c.config.WriteWait <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.config.WriteWait)
}

func (c *conn) waitHandlers(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	if grace <= 0 {
		<-done
		return true
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
