// Package websocket carries exchanges over a persistent WebSocket
// connection using the envelope protocol.
//
// Each frame holds one envelope message. Text frames are JSON; binary frames
// use the container negotiated through the subprotocol (duplex.json,
// duplex.cbor or duplex.msgpack). A connection multiplexes any number of
// exchanges by correlation id: every request runs in its own goroutine so
// the read loop never waits on handler work, and a handler may send partial
// responses before its terminal one. Messages that break the per-id
// sequence are logged and dropped.
//
// [Handler] is the server side and [Client] the calling side, with
// reconnect and exponential backoff.
package websocket
