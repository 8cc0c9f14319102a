package websocket

import (
	"github.com/gorilla/websocket"

	"github.com/rhuss/duplex/pkg/wire"
)

// Subprotocols offered during the handshake, in order of preference.
const (
	SubprotocolJSON    = "duplex.json"
	SubprotocolCBOR    = "duplex.cbor"
	SubprotocolMsgPack = "duplex.msgpack"
)

var subprotocols = []string{SubprotocolCBOR, SubprotocolMsgPack, SubprotocolJSON}

// formatFor maps a negotiated subprotocol to its container. No subprotocol
// means JSON.
func formatFor(subprotocol string) wire.Format {
	switch subprotocol {
	case SubprotocolCBOR:
		return wire.CBOR
	case SubprotocolMsgPack:
		return wire.MsgPack
	}
	return wire.JSON
}

// subprotocolFor is the inverse of formatFor.
func subprotocolFor(f wire.Format) string {
	switch f {
	case wire.CBOR:
		return SubprotocolCBOR
	case wire.MsgPack:
		return SubprotocolMsgPack
	}
	return SubprotocolJSON
}

// frameFormat returns the container of an inbound frame.
func frameFormat(messageType int, negotiated wire.Format) wire.Format {
	if messageType == websocket.TextMessage {
		return wire.JSON
	}
	return negotiated
}

// frameType returns the frame type used to send a message in f.
func frameType(f wire.Format) int {
	if f == wire.JSON {
		return websocket.TextMessage
	}
	return websocket.BinaryMessage
}
