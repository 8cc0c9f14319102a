package api

import "fmt"

// ExchangePhase is the lifecycle position of one correlation id on a
// persistent connection.
type ExchangePhase string

const (
	// PhaseIdle is the phase of an id no message has been seen for.
	PhaseIdle      ExchangePhase = ""
	PhaseOpen      ExchangePhase = "open"
	PhaseStreaming ExchangePhase = "streaming"
	PhaseClosed    ExchangePhase = "closed"
)

// MessageKind classifies an envelope message for phase tracking.
type MessageKind string

const (
	MessageRequest  MessageKind = "request"
	MessagePartial  MessageKind = "partial"
	MessageTerminal MessageKind = "terminal"
)

// NextExchangePhase returns the phase reached when a message of kind msg
// arrives in phase from. The valid sequence per id is one request, zero or
// more partial responses, then exactly one terminal response. Closed is
// terminal and accepts nothing.
func NextExchangePhase(from ExchangePhase, msg MessageKind) (ExchangePhase, *Error) {
	valid := map[ExchangePhase]map[MessageKind]ExchangePhase{
		PhaseIdle: {MessageRequest: PhaseOpen},
		PhaseOpen: {
			MessagePartial:  PhaseStreaming,
			MessageTerminal: PhaseClosed,
		},
		PhaseStreaming: {
			MessagePartial:  PhaseStreaming,
			MessageTerminal: PhaseClosed,
		},
		PhaseClosed: {},
	}

	next, ok := valid[from][msg]
	if !ok {
		if from == PhaseClosed {
			return from, NewEnvelopeError("exchange_closed",
				fmt.Sprintf("%s message after terminal response", msg))
		}
		return from, NewEnvelopeError("out_of_sequence",
			fmt.Sprintf("invalid %s message in phase %q", msg, phaseName(from)))
	}
	return next, nil
}

func phaseName(p ExchangePhase) string {
	if p == PhaseIdle {
		return "idle"
	}
	return string(p)
}
