package api

// StreamEventType identifies the type of a server-sent event delivering a
// streamed exchange over the single-shot transport.
type StreamEventType string

const (
	EventPartial  StreamEventType = "partial"
	EventComplete StreamEventType = "complete"
	EventError    StreamEventType = "error"
)

// StreamEvent is one server-sent event. Data is an encoded tree.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Sequence int             `json:"sequence"`
	Status   int             `json:"status"`
	Data     any             `json:"data,omitempty"`
}

// StreamEventFor converts a response into the event that carries it.
func StreamEventFor(resp *Response, seq int) StreamEvent {
	ev := StreamEvent{Sequence: seq, Status: resp.Status, Data: resp.Data}
	switch {
	case resp.Stream:
		ev.Type = EventPartial
	case resp.Status >= 400:
		ev.Type = EventError
	default:
		ev.Type = EventComplete
	}
	return ev
}
